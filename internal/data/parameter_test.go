package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scaleerrors"
)

func TestParameter_ValidateConnection(t *testing.T) {
	tests := map[string]struct {
		receiving        Parameter
		connecting       Parameter
		expectedCode     string
		expectedWarnings []string
	}{
		"matching files": {
			receiving:  NewFileParameter("input", []string{"image/png"}, true, false),
			connecting: NewFileParameter("output", []string{"image/png"}, true, false),
		},
		"file to json": {
			receiving:    NewJSONParameter("input", JSONString, true),
			connecting:   NewFileParameter("output", nil, true, false),
			expectedCode: MismatchedParamType,
		},
		"optional into required": {
			receiving:    NewFileParameter("input", nil, true, false),
			connecting:   NewFileParameter("output", nil, false, false),
			expectedCode: ParamRequired,
		},
		"required into optional": {
			receiving:  NewFileParameter("input", nil, false, false),
			connecting: NewFileParameter("output", nil, true, false),
		},
		"multiple into single": {
			receiving:    NewFileParameter("input", nil, true, false),
			connecting:   NewFileParameter("output", nil, true, true),
			expectedCode: NoMultipleFiles,
		},
		"single into multiple": {
			receiving:  NewFileParameter("input", nil, true, true),
			connecting: NewFileParameter("output", nil, true, false),
		},
		"unexpected media type": {
			receiving:        NewFileParameter("input", []string{"image/png"}, true, false),
			connecting:       NewFileParameter("output", []string{"image/png", "image/tiff"}, true, false),
			expectedWarnings: []string{MismatchedMediaTypes},
		},
		"json type mismatch": {
			receiving:    NewJSONParameter("input", JSONString, true),
			connecting:   NewJSONParameter("output", JSONInteger, true),
			expectedCode: MismatchedJSONType,
		},
		"json match": {
			receiving:  NewJSONParameter("input", JSONObject, false),
			connecting: NewJSONParameter("output", JSONObject, true),
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			warnings, err := tc.receiving.ValidateConnection(tc.connecting)
			if tc.expectedCode != "" {
				require.Error(t, err)
				assert.Equal(t, tc.expectedCode, scaleerrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedWarnings, warningCodes(warnings))
		})
	}
}

func TestParameter_Validate(t *testing.T) {
	tests := map[string]struct {
		parameter    Parameter
		expectedCode string
	}{
		"valid file":    {parameter: NewFileParameter("input_file-1", nil, true, false)},
		"valid json":    {parameter: NewJSONParameter("count", JSONInteger, true)},
		"bad name":      {parameter: NewFileParameter("bad name!", nil, true, false), expectedCode: InvalidParameterName},
		"bad json type": {parameter: NewJSONParameter("x", "date", true), expectedCode: InvalidJSONParamType},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.parameter.Validate()
			if tc.expectedCode == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tc.expectedCode, scaleerrors.CodeOf(err))
			}
		})
	}
}

func warningCodes(warnings []scaleerrors.Warning) []string {
	var codes []string
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	return codes
}
