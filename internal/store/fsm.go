package store

import (
	"fmt"

	"salonsched/internal/model"
)

// TemplateFSM holds the allowed template lifecycle transitions.
type TemplateFSM struct {
	transitions map[model.TemplateState][]model.TemplateState
}

// NewTemplateFSM creates the template lifecycle. Deleted is terminal.
func NewTemplateFSM() *TemplateFSM {
	return &TemplateFSM{
		transitions: map[model.TemplateState][]model.TemplateState{
			model.TemplateDraft:    {model.TemplateActive, model.TemplateDeleted},
			model.TemplateActive:   {model.TemplateInactive, model.TemplateDeleted},
			model.TemplateInactive: {model.TemplateActive, model.TemplateDeleted},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *TemplateFSM) CanTransition(from, to model.TemplateState) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns ErrInvalidTransition when from -> to is not allowed.
func (f *TemplateFSM) Transition(from, to model.TemplateState) error {
	if !f.CanTransition(from, to) {
		return fmt.Errorf("%w: template %s -> %s", model.ErrInvalidTransition, from, to)
	}
	return nil
}
