package hlir

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Module is a whole program: a list of functions, the first public one being
// the entry function.
type Module struct {
	Functions []*Function
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{}
}

// NewFunction creates and registers a new empty function.
func (m *Module) NewFunction(name string, public bool) *Function {
	fn := &Function{
		Name:     name,
		IsPublic: public,
		module:   m,
	}
	m.Functions = append(m.Functions, fn)
	return fn
}

// Main returns the entry function of the module: the first public function,
// or nil if there is none.
func (m *Module) Main() *Function {
	for _, fn := range m.Functions {
		if fn.IsPublic {
			return fn
		}
	}
	return nil
}

// FindFunction returns the function with the given name, or nil.
func (m *Module) FindFunction(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Verify checks the structural validity of every function in the module.
func (m *Module) Verify() error {
	for _, fn := range m.Functions {
		if err := fn.Verify(); err != nil {
			return errors.WithMessagef(err, "function %q", fn.Name)
		}
	}
	return nil
}

// Write renders the module in textual format.
func (m *Module) Write(writer io.Writer) error {
	for i, fn := range m.Functions {
		if i > 0 {
			if _, err := io.WriteString(writer, "\n"); err != nil {
				return err
			}
		}
		if err := fn.Write(writer); err != nil {
			return err
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (m *Module) String() string {
	var sb strings.Builder
	_ = m.Write(&sb)
	return sb.String()
}
