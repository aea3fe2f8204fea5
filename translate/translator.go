package translate

import (
	"fmt"

	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
)

// QueryComponents is the result of translating one query expression.
type QueryComponents struct {
	URI         string
	Version     snapodata.ProtocolVersion
	ElementType expr.Type
	// Projection is the Select selector, applied during materialization.
	Projection *expr.Lambda
	Rewrites   *RewriteMap
	Terminal   Terminal
	// Alias names the scalar in an aggregate response envelope.
	Alias      string
	ResultType expr.Type
}

// Translator turns query expressions into QueryComponents.
// It holds no per-call state and is safe for concurrent use.
type Translator struct {
	baseURL string
	model   edm.Model
}

// NewTranslator creates a translator for the service at baseURL.
// model may be nil, in which case resources are not checked.
func NewTranslator(baseURL string, model edm.Model) *Translator {
	return &Translator{baseURL: baseURL, model: model}
}

// Translate runs partial evaluation, normalization, binding and URI
// emission over n.
func (t *Translator) Translate(n expr.Node) (*QueryComponents, error) {
	if r, ok := n.(*expr.Resource); ok {
		return t.translateResource(r)
	}

	evaluator, err := NewPartialEvaluator()
	if err != nil {
		return nil, err
	}

	ctx := &TranslationContext{
		Model:    t.model,
		BaseURL:  t.baseURL,
		Original: n,
		Current:  n,
		Rewrites: NewRewriteMap(),
	}

	pipeline := NewPipeline(
		evaluator,
		NewNormalizer(),
		NewBinder(t.model),
		NewURIWriter(t.baseURL, t.model),
	)

	if err := pipeline.Execute(ctx); err != nil {
		return nil, err
	}

	re := ctx.Resource

	result := &QueryComponents{
		URI:         ctx.URI,
		Version:     ctx.Version,
		ElementType: re.ElementType,
		Rewrites:    ctx.Rewrites,
		Terminal:    re.Terminal,
		Alias:       re.Alias(),
		ResultType:  re.ResultType,
	}

	if re.Projection != nil {
		result.Projection = re.Projection.Selector
	}

	return result, nil
}

// translateResource handles a bare resource reference, which never gets
// trailing parentheses.
func (t *Translator) translateResource(r *expr.Resource) (*QueryComponents, error) {
	if t.model != nil {
		if _, ok := t.model.Resolve(r.Name); !ok {
			return nil, fmt.Errorf("%w: unknown resource %s", snapodata.ErrUnsupportedQueryShape, r.Name)
		}
	}

	elem := r.Type()
	if !r.Singleton {
		elem = elem.ElemType()
	}

	return &QueryComponents{
		URI:         ResourceURI(t.baseURL, r.Name),
		Version:     snapodata.Version40,
		ElementType: elem,
		Rewrites:    NewRewriteMap(),
		ResultType:  r.Type(),
	}, nil
}
