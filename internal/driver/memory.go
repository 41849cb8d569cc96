package driver

import (
	"strconv"
	"strings"

	"shipyard/internal/shiperr"
)

// MinDockerMemoryBytes is the smallest memory limit a Docker/Podman
// container will actually honor; below this the runtime typically refuses
// to start the container.
const MinDockerMemoryBytes = 6 * 1024 * 1024

// MinKubernetesMemoryBytes is the Kubernetes counterpart of
// MinDockerMemoryBytes. ParseKubernetesMemory does not apply it: pod memory
// quantities are passed through without a minimum.
const MinKubernetesMemoryBytes = 128 * 1024 * 1024

// ParseDockerMemory parses a Docker/Podman style memory string (bare bytes,
// or a k/kb/m/mb/g/gb suffix) into bytes, enforcing a runtime-sane minimum.
func ParseDockerMemory(s string) (int64, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return 0, nil
	}

	mult := int64(1)
	numeric := raw
	switch {
	case strings.HasSuffix(raw, "kb"):
		mult, numeric = 1024, raw[:len(raw)-2]
	case strings.HasSuffix(raw, "k"):
		mult, numeric = 1024, raw[:len(raw)-1]
	case strings.HasSuffix(raw, "mb"):
		mult, numeric = 1024*1024, raw[:len(raw)-2]
	case strings.HasSuffix(raw, "m"):
		mult, numeric = 1024*1024, raw[:len(raw)-1]
	case strings.HasSuffix(raw, "gb"):
		mult, numeric = 1024*1024*1024, raw[:len(raw)-2]
	case strings.HasSuffix(raw, "g"):
		mult, numeric = 1024*1024*1024, raw[:len(raw)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(numeric), 10, 64)
	if err != nil {
		return 0, shiperr.Wrap(shiperr.KindInvalidRequest, "invalid memory value "+s, err)
	}

	bytes := n * mult
	if bytes < MinDockerMemoryBytes {
		bytes = MinDockerMemoryBytes
	}
	return bytes, nil
}

// ParseKubernetesMemory validates a Kubernetes-style memory quantity
// (Ki/Mi/Gi, or a bare byte count). The suffix check ignores case, so a
// trailing "g" or "G" without "i" is rejected, and so is a trailing "m" or
// "M" without "i": a bare "m" in Kubernetes means milli-bytes, not mebibytes, and
// silently accepting it would request a container with a fraction of a
// byte of memory. Callers must spell mebibytes as "Mi".
func ParseKubernetesMemory(s string) (string, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return "", nil
	}

	lower := strings.ToLower(raw)
	if strings.HasSuffix(lower, "m") && !strings.HasSuffix(lower, "mi") {
		return "", shiperr.New(shiperr.KindInvalidRequest,
			"kubernetes memory spec \""+s+"\" uses bare 'm' which means milli-bytes; use 'Mi' for mebibytes or 'Gi' for gibibytes")
	}
	if strings.HasSuffix(lower, "g") && !strings.HasSuffix(lower, "gi") {
		return "", shiperr.New(shiperr.KindInvalidRequest,
			"kubernetes memory spec \""+s+"\" uses bare 'g'; use 'Gi' for gibibytes")
	}

	// Anything else (Ki, Mi, Gi, or a bare byte count) is left for
	// k8s.io/apimachinery's resource.ParseQuantity to validate at the call
	// site, where a parse failure surfaces as InvalidRequest too.
	return raw, nil
}
