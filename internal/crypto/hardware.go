package crypto

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Capabilities describes the CPU features relevant to key wrapping.
type Capabilities struct {
	AESHardware  bool   `json:"aes_hardware"`
	CLMUL        bool   `json:"clmul"`
	Architecture string `json:"architecture"`
	GOOS         string `json:"goos"`
	GoVersion    string `json:"go_version"`
}

// HasAESHardwareSupport checks if the CPU supports AES hardware acceleration.
func HasAESHardwareSupport() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}

// hasCarrylessMultiply reports support for the instruction GCM's GHASH uses.
func hasCarrylessMultiply() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasPCLMULQDQ
	case "arm64":
		return cpu.ARM64.HasPMULL
	case "s390x":
		return cpu.S390X.HasGHASH
	default:
		return false
	}
}

// DetectCapabilities reports whether AES-GCM key wrapping runs in hardware on
// this machine.
func DetectCapabilities() Capabilities {
	return Capabilities{
		AESHardware:  HasAESHardwareSupport(),
		CLMUL:        hasCarrylessMultiply(),
		Architecture: runtime.GOARCH,
		GOOS:         runtime.GOOS,
		GoVersion:    runtime.Version(),
	}
}
