package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
	"github.com/andrei-cloud/emv_studio/internal/httpapi"
)

func newRouter() http.Handler {
	return httpapi.NewHandler(calculator.NewDefaultRegistry(nil, 2))
}

func TestListCalculators(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calculators", nil)
	newRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var infos []httpapi.CalculatorInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))

	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
		require.NotEmpty(t, info.Capabilities)
		require.Empty(t, info.Schemas)
	}
	require.Equal(t, []string{"cipher", "cryptogram", "keys", "mac", "session", "udk"}, ids)
}

func TestGetCalculator(t *testing.T) {
	t.Parallel()

	router := newRouter()

	t.Run("known", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/calculators/keys", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var info httpapi.CalculatorInfo
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
		require.Equal(t, "keys", info.ID)
		require.Len(t, info.Schemas, len(info.Capabilities))
	})

	t.Run("unknown", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/calculators/nope", nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExecute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		body     string
		status   int
		code     string
		wantData map[string]string
	}{
		{
			name:     "kcv",
			path:     "/calculators/keys/kcv",
			body:     `{"params":{"key":"0123456789ABCDEFFEDCBA9876543210"}}`,
			status:   http.StatusOK,
			wantData: map[string]string{"kcv": "08D7B4"},
		},
		{
			name:   "missing parameter",
			path:   "/calculators/keys/KCV",
			body:   `{}`,
			status: http.StatusBadRequest,
			code:   "E07",
		},
		{
			name:   "empty body",
			path:   "/calculators/keys/KCV",
			status: http.StatusBadRequest,
			code:   "E07",
		},
		{
			name:   "unknown operation",
			path:   "/calculators/keys/NOPE",
			body:   `{}`,
			status: http.StatusNotFound,
			code:   "E06",
		},
		{
			name:   "partial block",
			path:   "/calculators/cipher/ENCRYPT",
			body:   `{"params":{"key":"0123456789ABCDEFFEDCBA9876543210","data":"00"}}`,
			status: http.StatusBadRequest,
			code:   "E03",
		},
		{
			name:   "cbc without iv",
			path:   "/calculators/cipher/ENCRYPT",
			body:   `{"params":{"key":"0123456789ABCDEFFEDCBA9876543210","data":"0000000000000000"},"options":{"mode":"CBC"}}`,
			status: http.StatusBadRequest,
			code:   "E02",
		},
		{
			name:   "missing card tags",
			path:   "/calculators/cryptogram/GENERATE",
			body:   `{"params":{"session_key":"0123456789ABCDEFFEDCBA9876543210","terminal_data":"9C0100","icc_data":"9F3602001C"}}`,
			status: http.StatusBadRequest,
			code:   "E05",
		},
	}

	router := newRouter()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body))
			router.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)

			var res calculator.Result
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			require.Equal(t, tc.code, res.Code)
			for k, v := range tc.wantData {
				require.Equal(t, v, res.Data[k])
			}
		})
	}
}

func TestExecuteBadJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/calculators/keys/KCV", bytes.NewBufferString("{not json"))
	newRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
