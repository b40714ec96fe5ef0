package disk

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vmw/internal/command"
)

// mockRunner is a mock implementation of command.Runner for testing.
type mockRunner struct {
	mu sync.Mutex

	outputFunc func(cmd command.Cmd) ([]byte, error)

	outputCalls []command.Cmd
}

func (m *mockRunner) Output(ctx context.Context, cmd command.Cmd) ([]byte, error) {
	m.mu.Lock()
	m.outputCalls = append(m.outputCalls, cmd)
	m.mu.Unlock()

	if m.outputFunc != nil {
		return m.outputFunc(cmd)
	}
	return nil, nil
}

func (m *mockRunner) Interactive(ctx context.Context, cmd command.Cmd) error {
	return fmt.Errorf("unexpected interactive command: %s", cmd)
}

// mockVolumeClient is a mock implementation of volumeClient for testing.
type mockVolumeClient struct {
	mu sync.Mutex

	volumes map[string]libvirt.StorageVol

	storageVolDeleteFunc   func(vol libvirt.StorageVol) error
	storagePoolRefreshFunc func(pool libvirt.StoragePool) error

	storageVolLookupByPathCalls []string
	storageVolDeleteCalls       []libvirt.StorageVol
	storagePoolRefreshCalls     []string
}

func newMockVolumeClient() *mockVolumeClient {
	return &mockVolumeClient{volumes: make(map[string]libvirt.StorageVol)}
}

func (m *mockVolumeClient) StorageVolLookupByPath(path string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storageVolLookupByPathCalls = append(m.storageVolLookupByPathCalls, path)

	vol, ok := m.volumes[path]
	if !ok {
		return libvirt.StorageVol{}, fmt.Errorf("Storage volume not found: no storage vol with matching path '%s'", path)
	}
	return vol, nil
}

func (m *mockVolumeClient) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	m.mu.Lock()
	m.storageVolDeleteCalls = append(m.storageVolDeleteCalls, vol)
	m.mu.Unlock()

	if m.storageVolDeleteFunc != nil {
		return m.storageVolDeleteFunc(vol)
	}
	return nil
}

func (m *mockVolumeClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, vol := range m.volumes {
		if vol.Pool == name {
			return libvirt.StoragePool{Name: name}, nil
		}
	}
	return libvirt.StoragePool{}, fmt.Errorf("Storage pool not found: no storage pool with matching name '%s'", name)
}

func (m *mockVolumeClient) StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error {
	m.mu.Lock()
	m.storagePoolRefreshCalls = append(m.storagePoolRefreshCalls, pool.Name)
	m.mu.Unlock()

	if m.storagePoolRefreshFunc != nil {
		return m.storagePoolRefreshFunc(pool)
	}
	return nil
}
