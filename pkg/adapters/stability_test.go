package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

// readForm は multipart のリクエストをフィールド名ごとの値に展開します。
func readForm(t *testing.T, req recordedRequest) map[string][]byte {
	t.Helper()
	_, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	require.NoError(t, err)
	mr := multipart.NewReader(bytes.NewReader(req.Body), params["boundary"])
	fields := map[string][]byte{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		fields[part.FormName()] = data
	}
	return fields
}

func TestStability_JSONResponse(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString(validPng)
	srv, rec := newServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"image": b64, "finish_reason": "SUCCESS", "seed": 1234})
	})
	a := NewStability(config.ProviderConfig{Name: "stability", BaseURL: srv.URL}, testDeps(srv.Client()))

	res, err := a.Generate(context.Background(), testSpec())

	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+b64, res.Images[0])
	assert.Equal(t, int64(1234), res.ProviderMeta["seed"])

	req := rec.at(0)
	assert.Equal(t, "/v2beta/stable-image/generate/sd3", req.Path)
	assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))

	form := readForm(t, req)
	assert.Equal(t, "0.7", string(form["strength"]), "ノイズ強度は反転するのだ")
	assert.Equal(t, "image-to-image", string(form["mode"]))
	assert.Equal(t, testSpec().Prompt, string(form["prompt"]))
	assert.Equal(t, validPng, form["image"])
	assert.NotContains(t, form, "seed")
}

func TestStability_SeedField(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString(validPng)
	srv, rec := newServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"image": b64, "finish_reason": "SUCCESS"})
	})
	a := NewStability(config.ProviderConfig{Name: "stability", BaseURL: srv.URL}, testDeps(srv.Client()))

	seed := int64(99)
	spec := testSpec()
	spec.Seed = &seed
	_, err := a.Generate(context.Background(), spec)

	require.NoError(t, err)
	assert.Equal(t, "99", string(readForm(t, rec.at(0))["seed"]))
}

func TestStability_ContentFiltered(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"image": "", "finish_reason": "CONTENT_FILTERED"})
	})
	a := NewStability(config.ProviderConfig{Name: "stability", BaseURL: srv.URL}, testDeps(srv.Client()))

	_, err := a.Generate(context.Background(), testSpec())

	ge := domain.AsGenerationError(err)
	assert.Equal(t, domain.KindNoResult, ge.Kind)
	assert.Equal(t, "CONTENT_FILTERED", ge.Detail)
}

func TestStability_BinaryResponse(t *testing.T) {
	srv, rec := newServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Finish-Reason", "SUCCESS")
		_, _ = w.Write(validPng)
	})
	a := NewStability(config.ProviderConfig{Name: "stability", BaseURL: srv.URL, Accept: "image/*"}, testDeps(srv.Client()))

	res, err := a.Generate(context.Background(), testSpec())

	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(validPng), res.Images[0])
	assert.Equal(t, "image/*", rec.at(0).Header.Get("Accept"))
}

func TestStability_Rejected(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": "bad_request", "errors": []string{"prompt: is too long"}})
	})
	a := NewStability(config.ProviderConfig{Name: "stability", BaseURL: srv.URL}, testDeps(srv.Client()))

	_, err := a.Generate(context.Background(), testSpec())

	ge := domain.AsGenerationError(err)
	assert.Equal(t, domain.KindProviderRejected, ge.Kind)
	assert.Equal(t, "prompt: is too long", ge.Detail)
	assert.Equal(t, "stability", ge.Provider)
}

func TestStability_MultipleOutputsUseDistinctSeeds(t *testing.T) {
	srv, rec := newServer(t, func(w http.ResponseWriter, r *http.Request, req recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"image": base64.StdEncoding.EncodeToString(validPng), "finish_reason": "SUCCESS"})
	})
	a := NewStability(config.ProviderConfig{Name: "stability", BaseURL: srv.URL}, testDeps(srv.Client()))

	seed := int64(7)
	spec := testSpec()
	spec.Seed = &seed
	spec.OutputCount = 2

	res, err := a.Generate(context.Background(), spec)

	require.NoError(t, err)
	assert.Len(t, res.Images, 2)
	require.Equal(t, 2, rec.count())
	assert.Equal(t, "7", string(readForm(t, rec.at(0))["seed"]))
	assert.Equal(t, "8", string(readForm(t, rec.at(1))["seed"]))
	assert.Equal(t, []int64{7, 8}, res.ProviderMeta["seeds"])
}
