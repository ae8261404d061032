// internal/model/model.go
package model

import (
	"errors"
	"fmt"
	"os"
)

// ChannelOrder is the colour layout a network expects in its input tensor
type ChannelOrder string

const (
	BGR ChannelOrder = "bgr"
	RGB ChannelOrder = "rgb"
)

var ErrInvalidModel = errors.New("invalid model description")

// Output describes one named network output. Shape excludes the batch
// dimension; the product of Shape is the per-slot element count.
type Output struct {
	Name  string
	Shape []int64
}

// Size is the number of float32 elements one slot contributes
func (o Output) Size() int64 {
	n := int64(1)
	for _, d := range o.Shape {
		n *= d
	}
	return n
}

// Model is a validated, read-only network description. It is safe to
// share by pointer across tasks once loaded; nothing mutates it.
type Model struct {
	Name     string
	Path     string
	Input    string
	Channels int64
	Height   int64
	Width    int64
	Order    ChannelOrder
	// Scale multiplies 8-bit pixel values before they enter the tensor
	Scale    float32
	Outputs  []Output
	MaxBatch int
}

// InputSize is the element count of one preprocessed input slot
func (m *Model) InputSize() int64 {
	return m.Channels * m.Height * m.Width
}

// SlotSize is the total element count one slot produces across outputs
func (m *Model) SlotSize() int64 {
	var n int64
	for _, o := range m.Outputs {
		n += o.Size()
	}
	return n
}

// OutputNames returns output names in declared order
func (m *Model) OutputNames() []string {
	names := make([]string, len(m.Outputs))
	for i, o := range m.Outputs {
		names[i] = o.Name
	}
	return names
}

// Validate checks structural consistency
func (m *Model) Validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidModel)
	case m.Input == "":
		return fmt.Errorf("%w: %s: input name is required", ErrInvalidModel, m.Name)
	case m.Channels != 1 && m.Channels != 3:
		return fmt.Errorf("%w: %s: unsupported channel count %d", ErrInvalidModel, m.Name, m.Channels)
	case m.Height <= 0 || m.Width <= 0:
		return fmt.Errorf("%w: %s: invalid input size %dx%d", ErrInvalidModel, m.Name, m.Width, m.Height)
	case m.Order != BGR && m.Order != RGB:
		return fmt.Errorf("%w: %s: unknown channel order %q", ErrInvalidModel, m.Name, m.Order)
	case len(m.Outputs) == 0:
		return fmt.Errorf("%w: %s: at least one output is required", ErrInvalidModel, m.Name)
	case m.MaxBatch <= 0:
		return fmt.Errorf("%w: %s: max batch must be positive", ErrInvalidModel, m.Name)
	}
	for _, o := range m.Outputs {
		if o.Name == "" || o.Size() <= 0 {
			return fmt.Errorf("%w: %s: malformed output %q", ErrInvalidModel, m.Name, o.Name)
		}
	}
	return nil
}

// Options controls loading. RequireFile is false for mock engines, which
// never open the model file.
type Options struct {
	Path        string
	MaxBatch    int
	RequireFile bool
}

// Load validates m and, when asked, that its file exists.
func Load(m Model, opts Options) (*Model, error) {
	if opts.Path != "" {
		m.Path = opts.Path
	}
	if opts.MaxBatch > 0 {
		m.MaxBatch = opts.MaxBatch
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if opts.RequireFile {
		if m.Path == "" {
			return nil, fmt.Errorf("%w: %s: model path is required", ErrInvalidModel, m.Name)
		}
		if _, err := os.Stat(m.Path); err != nil {
			return nil, fmt.Errorf("failed to stat model %s: %w", m.Path, err)
		}
	}
	return &m, nil
}
