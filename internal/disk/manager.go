// Package disk creates and removes VM disk images.
//
// Overlays are created with qemu-img rather than libvirt storage pools so
// that clones work for any base disk, whether or not its directory is a
// defined pool. Deletion goes through libvirt when the file belongs to a
// pool so the pool stays consistent, and falls back to the filesystem.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/digitalocean/go-libvirt"
	log "github.com/sirupsen/logrus"

	"github.com/jbweber/vmw/internal/command"
)

// DefaultFormat is assumed for base disks whose format is unknown.
const DefaultFormat = "qcow2"

// ErrExists is returned when an overlay would overwrite an existing file.
var ErrExists = errors.New("disk image already exists")

// volumeClient is the subset of *libvirt.Libvirt used for storage pools
// and volumes.
type volumeClient interface {
	StorageVolLookupByPath(path string) (libvirt.StorageVol, error)
	StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error
	StoragePoolLookupByName(name string) (libvirt.StoragePool, error)
	StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error
}

// Manager handles disk image operations for VMs.
type Manager struct {
	runner  command.Runner
	client  volumeClient
	qemuImg string
}

// NewManager creates a disk manager. qemuImg is the qemu-img program to run.
func NewManager(runner command.Runner, client volumeClient, qemuImg string) *Manager {
	if qemuImg == "" {
		qemuImg = "qemu-img"
	}
	return &Manager{runner: runner, client: client, qemuImg: qemuImg}
}

// ImageInfo is the subset of `qemu-img info --output=json` vmw reads.
type ImageInfo struct {
	Filename        string `json:"filename"`
	Format          string `json:"format"`
	VirtualSize     int64  `json:"virtual-size"`
	ActualSize      int64  `json:"actual-size"`
	BackingFilename string `json:"backing-filename,omitempty"`
	BackingFormat   string `json:"backing-filename-format,omitempty"`
}

// Info inspects an image with qemu-img.
func (m *Manager) Info(ctx context.Context, path string) (*ImageInfo, error) {
	out, err := m.runner.Output(ctx, command.Cmd{
		Name: m.qemuImg,
		Args: []string{"info", "--force-share", "--output=json", path},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to inspect disk %s: %w", path, err)
	}

	var info ImageInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("failed to parse qemu-img info for %s: %w", path, err)
	}
	return &info, nil
}

// Format returns the base format to record in an overlay. The format
// declared in the domain definition wins; otherwise qemu-img is asked, and
// DefaultFormat is used when that fails.
func (m *Manager) Format(ctx context.Context, path, declared string) string {
	if declared != "" {
		return declared
	}
	info, err := m.Info(ctx, path)
	if err != nil || info.Format == "" {
		log.Debugf("assuming %s for %s: %v", DefaultFormat, path, err)
		return DefaultFormat
	}
	return info.Format
}

// CreateOverlay creates a qcow2 overlay at path backed by base.
func (m *Manager) CreateOverlay(ctx context.Context, base, baseFormat, path string) error {
	exists, err := Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}

	if baseFormat == "" {
		baseFormat = DefaultFormat
	}

	_, err = m.runner.Output(ctx, command.Cmd{
		Name: m.qemuImg,
		Args: []string{"create", "-f", "qcow2", "-b", base, "-F", baseFormat, path},
	})
	if err != nil {
		return fmt.Errorf("failed to create overlay %s: %w", path, err)
	}

	log.Infof("created overlay %s backed by %s", path, base)
	m.refreshPoolOf(base)
	return nil
}

// refreshPoolOf refreshes the libvirt pool holding path, if any, so a file
// created next to it shows up as a volume.
func (m *Manager) refreshPoolOf(path string) {
	if m.client == nil {
		return
	}

	vol, err := m.client.StorageVolLookupByPath(path)
	if err != nil {
		log.Debugf("%s is not in a storage pool: %v", path, err)
		return
	}

	pool, err := m.client.StoragePoolLookupByName(vol.Pool)
	if err != nil {
		log.Warnf("pool %s not found: %v", vol.Pool, err)
		return
	}
	if err := m.client.StoragePoolRefresh(pool, 0); err != nil {
		log.Warnf("failed to refresh pool %s: %v", vol.Pool, err)
		return
	}
	log.Debugf("refreshed pool %s", vol.Pool)
}

// Delete removes a disk image. Files known to libvirt are deleted as storage
// volumes; other files are removed directly. A missing file is not an error.
func (m *Manager) Delete(ctx context.Context, path string) error {
	if m.client != nil {
		vol, err := m.client.StorageVolLookupByPath(path)
		if err == nil {
			if err := m.client.StorageVolDelete(vol, 0); err != nil {
				return fmt.Errorf("failed to delete volume %s: %w", path, err)
			}
			log.Debugf("deleted volume %s from pool %s", path, vol.Pool)
			return nil
		}
		log.Debugf("no libvirt volume for %s, removing file: %v", path, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove disk %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a file exists at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check disk %s: %w", path, err)
}
