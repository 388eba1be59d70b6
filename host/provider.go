package host

import (
	"fmt"

	"gridkernel/buffer"
	"gridkernel/cluster"
	"gridkernel/core"
)

// KernelProvider is the cluster.Provider that answers through the kernel's
// flat buffer. It keeps no hierarchy: expansion zooms are approximated and
// leaves are unavailable.
//
// It runs under the owning Client's lock.
type KernelProvider struct {
	client *Client
}

var _ cluster.Provider = (*KernelProvider)(nil)

func (p *KernelProvider) Name() string { return "kernel" }

func (p *KernelProvider) Available() bool { return p.client.backend.Available() }

func (p *KernelProvider) LoadPoints(points []core.Point) error {
	k, err := p.client.backend.Kernel()
	if err != nil {
		return err
	}
	err = stage(k, buffer.PointIn.Size(len(points)), func(in []float64) error {
		_, err := buffer.EncodePoints(in, points)
		return err
	})
	if err != nil {
		return err
	}
	_, err = k.LoadPoints(len(points))
	return err
}

func (p *KernelProvider) GetClusters(bounds core.Bounds, zoom int) ([]core.Cluster, error) {
	k, err := p.client.backend.Kernel()
	if err != nil {
		return nil, err
	}
	n, err := k.GetClusters(bounds.West, bounds.South, bounds.East, bounds.North, zoom)
	if err != nil {
		return nil, err
	}
	out, err := output(k)
	if err != nil {
		return nil, err
	}
	return buffer.DecodeClusters(out, n)
}

// ExpansionZoom is the zoom-step heuristic
func (p *KernelProvider) ExpansionZoom(_ int64, zoom int) (int, error) {
	if !p.Available() {
		return 0, fmt.Errorf("expansion zoom: %w", core.ErrUnavailable)
	}
	return p.client.backend.Options().Cluster.ApproxExpansionZoom(zoom), nil
}

// GetChildren is not tracked by the kernel
func (p *KernelProvider) GetChildren(int64) ([]core.Cluster, error) {
	return nil, fmt.Errorf("cluster children on kernel: %w", core.ErrUnavailable)
}

// GetLeaves is not tracked by the kernel
func (p *KernelProvider) GetLeaves(int64, int, int) ([]core.Point, error) {
	return nil, fmt.Errorf("cluster leaves on kernel: %w", core.ErrUnavailable)
}
