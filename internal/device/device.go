// Package device models accelerators as opaque asynchronous executors
// reached through per-device ordered streams. Work is enqueued without
// blocking; Synchronize is the only blocking call and the only point where
// device-side failures surface.
package device

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// API selects the vendor driver stack a device is reached through.
type API int

const (
	CUDA API = iota
	HIP
	CPU // host-simulated executor, always available
)

func (a API) String() string {
	switch a {
	case CUDA:
		return "cuda"
	case HIP:
		return "hip"
	case CPU:
		return "cpu"
	default:
		return "unknown"
	}
}

// ParseAPI maps a vendor tag to an API selector.
func ParseAPI(s string) (API, error) {
	switch s {
	case "cuda":
		return CUDA, nil
	case "hip":
		return HIP, nil
	case "cpu":
		return CPU, nil
	}
	return 0, fmt.Errorf("device: unknown api %q", s)
}

// Device identifies one accelerator. Immutable once resolved.
type Device struct {
	Ordinal int
	API     API
}

func (d Device) String() string {
	return fmt.Sprintf("%s:%d", d.API, d.Ordinal)
}

var (
	enumOnce sync.Once
	devices  []Device
)

// Devices returns the devices visible to this process. Enumeration happens
// once; the executor is host-simulated, so the count and vendor tag come
// from BRACER_DEVICE_COUNT / BRACER_DEVICE_API rather than a driver probe.
func Devices() []Device {
	enumOnce.Do(func() {
		count := 1
		if v := os.Getenv("BRACER_DEVICE_COUNT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				count = n
			}
		}
		api := CUDA
		if v := os.Getenv("BRACER_DEVICE_API"); v != "" {
			if a, err := ParseAPI(v); err == nil {
				api = a
			}
		}
		devices = make([]Device, count)
		for i := range devices {
			devices[i] = Device{Ordinal: i, API: api}
		}
	})
	return devices
}

// Get resolves a device by ordinal.
func Get(ordinal int) (Device, error) {
	devs := Devices()
	if ordinal < 0 || ordinal >= len(devs) {
		return Device{}, fmt.Errorf("device: ordinal %d out of range (have %d)", ordinal, len(devs))
	}
	return devs[ordinal], nil
}
