package remote

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region request
// Request keys: field (string), latent (list), coherence, uncertainty.
func encodeRequest(id field.ID, st state.State) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"field":       id.String(),
		"latent":      floats(st.Latent),
		"coherence":   st.Coherence,
		"uncertainty": st.Uncertainty,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return s, nil
}

func decodeRequest(s *structpb.Struct) (field.ID, state.State, error) {
	id, err := field.ParseID(s.GetFields()["field"].GetStringValue())
	if err != nil {
		return 0, state.State{}, fmt.Errorf("decode request: %w", err)
	}
	st := state.State{
		Latent:      numbers(s.GetFields()["latent"]),
		Coherence:   s.GetFields()["coherence"].GetNumberValue(),
		Uncertainty: s.GetFields()["uncertainty"].GetNumberValue(),
	}
	return id, st, nil
}

// #endregion request

// #region response
// Response keys: action (list), value, uncertainty, latent (list, optional).
func encodeProposal(p field.Proposal) (*structpb.Struct, error) {
	m := map[string]any{
		"action":      floats(p.Action),
		"value":       p.Value,
		"uncertainty": p.Uncertainty,
	}
	if p.Latent != nil {
		m["latent"] = floats(p.Latent)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode proposal: %w", err)
	}
	return s, nil
}

func decodeProposal(id field.ID, s *structpb.Struct) (field.Proposal, error) {
	f := s.GetFields()
	if _, ok := f["action"]; !ok {
		return field.Proposal{}, fmt.Errorf("decode proposal: %s: missing action", id)
	}
	return field.Proposal{
		Field:       id,
		Action:      numbers(f["action"]),
		Value:       f["value"].GetNumberValue(),
		Uncertainty: f["uncertainty"].GetNumberValue(),
		Latent:      numbers(f["latent"]),
	}, nil
}

// #endregion response

// #region helpers
func floats(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

// numbers returns nil when v is absent or not a list.
func numbers(v *structpb.Value) []float64 {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]float64, len(list.GetValues()))
	for i, x := range list.GetValues() {
		out[i] = x.GetNumberValue()
	}
	return out
}

// #endregion helpers
