package engine

import (
	"fmt"

	"github.com/scrypster/fieldclone/pkg/types"
)

// ConflictAnalyzer checks a field selection against source and target
// reports without mutating anything. It backs the ValidateSelection
// operation and the pre-clone preview flags.
type ConflictAnalyzer struct{}

// NewConflictAnalyzer creates an analyzer.
func NewConflictAnalyzer() *ConflictAnalyzer {
	return &ConflictAnalyzer{}
}

// Analyze classifies each requested key. Keys absent from the source
// report or not cloneable produce warnings; keys already holding a
// value at the target are recorded as conflicts. Conflicts are
// informational and never block cloning by themselves — they only turn
// into per-field errors when overwriting is disabled at execute time.
func (a *ConflictAnalyzer) Analyze(sourceReport, targetReport *types.AvailableFieldsReport, fieldKeys []string) *types.SelectionAnalysis {
	analysis := &types.SelectionAnalysis{}

	for _, key := range fieldKeys {
		sourceField, ok := sourceReport.Fields[key]
		if !ok {
			analysis.Warnings = append(analysis.Warnings,
				fmt.Sprintf("field %s not found in source", key))
			continue
		}

		if !sourceField.Cloneable {
			analysis.Warnings = append(analysis.Warnings,
				fmt.Sprintf("field %s (%s) is not cloneable", key, sourceField.Descriptor.Label))
			continue
		}

		if targetField, ok := targetReport.Fields[key]; ok && targetField.HasValue {
			analysis.Conflicts = append(analysis.Conflicts, types.ConflictInfo{
				Key:   key,
				Label: targetField.Descriptor.Label,
				Type:  targetField.Descriptor.Type,
			})
		}

		analysis.ValidFields = append(analysis.ValidFields, key)
	}

	analysis.CanProceed = len(analysis.ValidFields) > 0
	return analysis
}
