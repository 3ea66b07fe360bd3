package sahi

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"
)

const (
	// BCM2712AllCores is the cpu affinity mask of the Raspberry Pi 5 cortex
	// A76 cores 0-3
	BCM2712AllCores = uintptr(0b00001111)
	// BCM2712InferenceCores leaves core 0 for the camera capture and the OS
	BCM2712InferenceCores = uintptr(0b00001110)

	// BCM2711AllCores is the cpu affinity mask of the Raspberry Pi 4 cortex
	// A72 cores 0-3
	BCM2711AllCores = uintptr(0b00001111)
	// BCM2711InferenceCores leaves core 0 for the camera capture and the OS
	BCM2711InferenceCores = uintptr(0b00001110)

	// RK3588FastCores is the cpu affinity mask of the fast cortex A76 cores 4-7
	RK3588FastCores = uintptr(0b11110000)
	// RK3588AllCores is the cpu affinity mask for all cortex A76 and A55 cores 0-7
	RK3588AllCores = uintptr(0b11111111)
)

// CoreType specifies which CPU cores tile inference is pinned to
type CoreType int

const (
	// InferenceCores are the cores set aside for running the detector
	InferenceCores CoreType = 0
	// AllCores uses every core on the board
	AllCores CoreType = 1
)

// ParseCoreType converts the names "fast" and "all" to a CoreType
func ParseCoreType(s string) (CoreType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast", "inference":
		return InferenceCores, nil
	case "all":
		return AllCores, nil
	}

	return AllCores, fmt.Errorf("unknown core type: %s", s)
}

// coreMaskList defines a list of CPU core masks for lookup by platform
var coreMaskList = map[string]map[CoreType]uintptr{
	"bcm2711": {
		InferenceCores: BCM2711InferenceCores,
		AllCores:       BCM2711AllCores,
	},
	"bcm2712": {
		InferenceCores: BCM2712InferenceCores,
		AllCores:       BCM2712AllCores,
	},
	"rk3588": {
		InferenceCores: RK3588FastCores,
		AllCores:       RK3588AllCores,
	},
}

// SetCPUAffinity sets the CPU Affinity mask of the program to run on the specified
// cores
func SetCPUAffinity(mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity gets the current CPU Affinity mask the program is running on
func GetCPUAffinity() (uintptr, error) {

	var mask uintptr

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_GETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return 0, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	return mask, nil
}

// CPUCoreMask calculates the core mask by passing in the CPU core numbers as a
// slice, eg: []int{1,2,3}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// CoreCount returns the number of cores set in the mask, used to size the
// detector pool to the pinned cores
func CoreCount(mask uintptr) int {

	n := 0

	for ; mask != 0; mask &= mask - 1 {
		n++
	}

	return n
}

// PlatformCoreMask returns the core mask of the platform bcm2711|bcm2712|rk3588
func PlatformCoreMask(platform string, ct CoreType) (uintptr, error) {

	platform = strings.ToLower(strings.TrimSpace(platform))

	if masks, ok := coreMaskList[platform]; ok {
		if mask, ok := masks[ct]; ok {
			return mask, nil
		}
	}

	return 0, fmt.Errorf("unknown platform: %s", platform)
}

// SetCPUAffinityByPlatform sets the CPU Affinity mask of the program to run
// on the cores of the given platform
func SetCPUAffinityByPlatform(platform string, ct CoreType) error {

	mask, err := PlatformCoreMask(platform, ct)

	if err != nil {
		return err
	}

	return SetCPUAffinity(mask)
}
