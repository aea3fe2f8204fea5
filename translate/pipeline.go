package translate

import (
	"fmt"

	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
)

// Processor is one step from query expression to URI: partial evaluation,
// normalization, binding or URI emission. It reads and replaces the fields
// of the context it is given.
type Processor interface {
	Process(ctx *TranslationContext) error
	Name() string
}

// TranslationContext carries one expression through the steps. Each step
// fills the fields the next one reads.
type TranslationContext struct {
	Model   edm.Model
	BaseURL string

	// Original is the input tree; Current is the tree as rewritten so far
	Original expr.Node
	Current  expr.Node
	Rewrites *RewriteMap

	// Binding results
	Resource *ResourceExpression

	// Emission results
	URI     string
	Version snapodata.ProtocolVersion
}

// Pipeline applies processors in order. The first failure stops it and is
// reported with the name of the failing step.
type Pipeline struct {
	processors []Processor
}

func NewPipeline(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// AddProcessor appends a step that runs after the existing ones.
func (p *Pipeline) AddProcessor(processor Processor) {
	p.processors = append(p.processors, processor)
}

// Execute runs the steps over ctx. On success URI and Version are set.
func (p *Pipeline) Execute(ctx *TranslationContext) error {
	for _, processor := range p.processors {
		err := processor.Process(ctx)
		if err != nil {
			return fmt.Errorf("processor %s failed: %w", processor.Name(), err)
		}
	}

	return nil
}
