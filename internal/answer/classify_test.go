// ABOUTME: Tests for request kind parsing and the answer decision table
// ABOUTME: Table-driven over every row, including precedence between rows

package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRequestKind(t *testing.T) {
	assert.Equal(t, KindSearch, ParseRequestKind("SEARCH"))
	assert.Equal(t, KindSearch, ParseRequestKind(" search "))
	assert.Equal(t, KindRegular, ParseRequestKind("REGULAR"))
	assert.Equal(t, KindRegular, ParseRequestKind(""))
	assert.Equal(t, KindRegular, ParseRequestKind("files"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		kind  RequestKind
		names []string
		want  Strategy
	}{
		{"regular without citations", KindRegular, nil, StrategyText},
		{"regular ignores citations", KindRegular, []string{"report.pdf"}, StrategyText},
		{"regular ignores source", KindRegular, []string{"source"}, StrategyText},
		{"search without citations", KindSearch, nil, StrategyEmbeddedJSON},
		{"search with empty slice", KindSearch, []string{}, StrategyEmbeddedJSON},
		{"search with source", KindSearch, []string{"source"}, StrategyFileIDLookup},
		{"source wins over file substring", KindSearch, []string{"file.docx", "source"}, StrategyFileIDLookup},
		{"source must match exactly", KindSearch, []string{"Source"}, StrategyAsIs},
		{"file substring", KindSearch, []string{"budget.xlsx", "myfile.pdf"}, StrategyRawFilenames},
		{"file substring is case sensitive", KindSearch, []string{"FILE.pdf"}, StrategyAsIs},
		{"plain names", KindSearch, []string{"Report 2024.docx"}, StrategyAsIs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.kind, tt.names))
		})
	}
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "file_id_lookup", StrategyFileIDLookup.String())
	assert.Equal(t, "unknown", Strategy(99).String())
}
