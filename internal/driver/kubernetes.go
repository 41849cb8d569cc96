package driver

import (
	"context"
	"fmt"
	"io"
	"time"

	"shipyard/internal/shiperr"
	"shipyard/internal/store"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesConfig configures the Kubernetes driver. Ships are long-running:
// a Ship's Pod stays up across many exec calls and is torn down explicitly
// on stop or reap, so this driver manages Pods and PersistentVolumeClaims
// directly rather than a batch Job.
type KubernetesConfig struct {
	Kubeconfig         string // used only when in-cluster config is unavailable
	Namespace          string
	ServiceAccount     string
	Image              string
	ServicePort        int
	StorageClassName   string
	PVCSize            string
	DefaultCPULimit    string
	DefaultMemoryLimit string
	PodReadyTimeout    time.Duration
}

type kubernetesDriver struct {
	clientset kubernetes.Interface
	cfg       KubernetesConfig
}

// NewKubernetesDriver builds a driver against the in-cluster service
// account when available, falling back to a kubeconfig file the way
// clients run outside the cluster (e.g. from an operator's workstation)
// need to.
func NewKubernetesDriver(cfg KubernetesConfig) (Driver, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.ServicePort == 0 {
		cfg.ServicePort = 8123
	}
	if cfg.PVCSize == "" {
		cfg.PVCSize = "1Gi"
	}
	if cfg.PodReadyTimeout == 0 {
		cfg.PodReadyTimeout = 60 * time.Second
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		if cfg.Kubeconfig == "" {
			return nil, shiperr.Wrap(shiperr.KindBackendUnreachable, "no in-cluster config and no kubeconfig provided", err)
		}
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
		if err != nil {
			return nil, shiperr.Wrap(shiperr.KindBackendUnreachable, "build kubeconfig", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, shiperr.Wrap(shiperr.KindBackendUnreachable, "build kubernetes clientset", err)
	}

	return &kubernetesDriver{clientset: clientset, cfg: cfg}, nil
}

func pvcName(shipID string) string { return "ship-" + shipID + "-home" }
func podName(shipID string) string { return "ship-" + shipID }

func (d *kubernetesDriver) DataExists(ctx context.Context, shipID string) bool {
	_, err := d.clientset.CoreV1().PersistentVolumeClaims(d.cfg.Namespace).Get(ctx, pvcName(shipID), metav1.GetOptions{})
	return err == nil
}

func (d *kubernetesDriver) ensurePVC(ctx context.Context, shipID, size string) error {
	_, err := d.clientset.CoreV1().PersistentVolumeClaims(d.cfg.Namespace).Get(ctx, pvcName(shipID), metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return err
	}

	quantity, err := resource.ParseQuantity(size)
	if err != nil {
		return shiperr.Wrap(shiperr.KindInvalidRequest, "invalid pvc size "+size, err)
	}

	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:   pvcName(shipID),
			Labels: map[string]string{"ship_id": shipID, "created_by": "bay"},
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: quantity},
			},
		},
	}
	if d.cfg.StorageClassName != "" {
		pvc.Spec.StorageClassName = &d.cfg.StorageClassName
	}

	_, err = d.clientset.CoreV1().PersistentVolumeClaims(d.cfg.Namespace).Create(ctx, pvc, metav1.CreateOptions{})
	return err
}

func (d *kubernetesDriver) buildPod(shipID string, spec store.ShipSpec) (*corev1.Pod, error) {
	memSpec, err := ParseKubernetesMemory(spec.Memory)
	if err != nil {
		return nil, err
	}

	resources := corev1.ResourceRequirements{Limits: corev1.ResourceList{}, Requests: corev1.ResourceList{}}
	if spec.CPUs > 0 {
		q := resource.MustParse(fmt.Sprintf("%gm", spec.CPUs*1000))
		resources.Limits[corev1.ResourceCPU] = q
		resources.Requests[corev1.ResourceCPU] = q
	} else if d.cfg.DefaultCPULimit != "" {
		q := resource.MustParse(d.cfg.DefaultCPULimit)
		resources.Limits[corev1.ResourceCPU] = q
	}
	memLimit := memSpec
	if memLimit == "" {
		memLimit = d.cfg.DefaultMemoryLimit
	}
	if memLimit != "" {
		q, err := resource.ParseQuantity(memLimit)
		if err != nil {
			return nil, shiperr.Wrap(shiperr.KindInvalidRequest, "invalid memory quantity "+memLimit, err)
		}
		resources.Limits[corev1.ResourceMemory] = q
		resources.Requests[corev1.ResourceMemory] = q
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName(shipID),
			Namespace: d.cfg.Namespace,
			Labels:    map[string]string{"ship_id": shipID, "created_by": "bay"},
		},
		Spec: corev1.PodSpec{
			RestartPolicy:      corev1.RestartPolicyNever,
			ServiceAccountName: d.cfg.ServiceAccount,
			Containers: []corev1.Container{{
				Name:  "ship",
				Image: d.cfg.Image,
				Env:   []corev1.EnvVar{{Name: "SHIP_ID", Value: shipID}},
				Ports: []corev1.ContainerPort{{ContainerPort: int32(d.cfg.ServicePort)}},
				VolumeMounts: []corev1.VolumeMount{
					{Name: "home", MountPath: "/home"},
				},
				Resources: resources,
			}},
			Volumes: []corev1.Volume{
				{
					Name: "home",
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: pvcName(shipID)},
					},
				},
			},
		},
	}
	return pod, nil
}

func (d *kubernetesDriver) Create(ctx context.Context, shipID string, spec store.ShipSpec) (ContainerInfo, error) {
	if err := d.ensurePVC(ctx, shipID, d.cfg.PVCSize); err != nil {
		return ContainerInfo{}, shiperr.Wrap(shiperr.KindBackendUnreachable, "ensure pvc for ship "+shipID, err)
	}

	pod, err := d.buildPod(shipID, spec)
	if err != nil {
		return ContainerInfo{}, err
	}

	created, err := d.clientset.CoreV1().Pods(d.cfg.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return ContainerInfo{}, shiperr.Wrap(shiperr.KindBackendUnreachable, "create pod for ship "+shipID, err)
	}

	running, err := d.waitForRunning(ctx, created.Name)
	if err != nil {
		_ = d.Stop(ctx, created.Name)
		return ContainerInfo{}, err
	}

	endpoint := fmt.Sprintf("%s:%d", running.Status.PodIP, d.cfg.ServicePort)
	return ContainerInfo{ContainerID: created.Name, Endpoint: endpoint, Status: string(running.Status.Phase)}, nil
}

// waitForRunning watches the pod until it reaches Running with a pod IP
// assigned, mirroring the poll-until-ready idiom used elsewhere for
// backends with no synchronous "created and reachable" signal.
func (d *kubernetesDriver) waitForRunning(ctx context.Context, name string) (*corev1.Pod, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PodReadyTimeout)
	defer cancel()

	w, err := d.clientset.CoreV1().Pods(d.cfg.Namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", name).String(),
	})
	if err != nil {
		return nil, shiperr.Wrap(shiperr.KindBackendUnreachable, "watch pod "+name, err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, shiperr.New(shiperr.KindBackendTimeout, "pod "+name+" did not become ready in time")
		case ev, ok := <-w.ResultChan():
			if !ok {
				return nil, shiperr.New(shiperr.KindBackendUnreachable, "pod watch closed for "+name)
			}
			pod, ok := ev.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			if ev.Type == watch.Deleted {
				return nil, shiperr.New(shiperr.KindBackendUnreachable, "pod "+name+" was deleted before becoming ready")
			}
			if pod.Status.Phase == corev1.PodFailed {
				return nil, shiperr.New(shiperr.KindBackendUnreachable, "pod "+name+" failed to start")
			}
			if pod.Status.Phase == corev1.PodRunning && pod.Status.PodIP != "" {
				return pod, nil
			}
		}
	}
}

func (d *kubernetesDriver) Stop(ctx context.Context, containerID string) error {
	propagation := metav1.DeletePropagationForeground
	err := d.clientset.CoreV1().Pods(d.cfg.Namespace).Delete(ctx, containerID, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return shiperr.Wrap(shiperr.KindBackendUnreachable, "delete pod "+containerID, err)
	}
	return nil
}

func (d *kubernetesDriver) Logs(ctx context.Context, containerID string, tail int) (string, error) {
	if tail <= 0 || tail > 10000 {
		tail = 1000
	}
	tailLines := int64(tail)
	req := d.clientset.CoreV1().Pods(d.cfg.Namespace).GetLogs(containerID, &corev1.PodLogOptions{TailLines: &tailLines})
	stream, err := req.Stream(ctx)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", nil
		}
		return "", shiperr.Wrap(shiperr.KindBackendUnreachable, "get logs for pod "+containerID, err)
	}
	defer stream.Close()

	buf, err := io.ReadAll(stream)
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindBackendUnreachable, "read logs for pod "+containerID, err)
	}
	return string(buf), nil
}

func (d *kubernetesDriver) IsRunning(ctx context.Context, containerID string) bool {
	pod, err := d.clientset.CoreV1().Pods(d.cfg.Namespace).Get(ctx, containerID, metav1.GetOptions{})
	if err != nil {
		return false
	}
	return pod.Status.Phase == corev1.PodRunning
}
