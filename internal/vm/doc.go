// Package vm provides high-level VM lifecycle management operations.
//
// A Manager orchestrates the low-level components (libvirt, disk images,
// the per-VM config store) behind the operations vmw exposes:
//   - EnsureRunning / EnsureStopped / StopAll: drive a VM to a state and poll
//     until it gets there
//   - IPAddress / WaitForAddress / EnsureReachable: discover a guest address
//     and wait for SSH
//   - Clone: create a VM whose disks are overlays of a stopped base VM's disks
//   - Trash: remove a VM and the disks no other VM uses
//   - Get / List: report one or all VMs with their state and recorded config
//   - SetUser / User / ClearUser: manage the SSH user recorded for a VM
//
// Polling:
//
// State changes are observed by sampling libvirt once per second until the
// desired state is reached or the timeout elapses. A timeout fails only the
// current operation with an error wrapping ErrTimeout; there are no retries.
//
// Error Handling:
//
// Clone cleans up the overlays and the new domain if a step after overlay
// creation fails. Trash deletes disks best effort. Cleanup errors are logged
// but do not change the operation's result.
package vm
