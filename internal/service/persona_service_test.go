package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sme-plug-go/internal/model"
	"sme-plug-go/internal/persona"
	"sme-plug-go/internal/repository"
)

type fakeCorpus struct {
	files map[string][]string
	err   error
}

func (f *fakeCorpus) ListCorpusFiles(_ context.Context, personaID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files[personaID], nil
}

func testRegistry() persona.Registry {
	return persona.NewStaticRegistry("legal",
		&model.Persona{ID: "legal", Name: "Legal", GuardrailLevel: model.GuardrailStandard, CorpusFiles: []string{"GDPR.pdf"}},
		&model.Persona{ID: "healthcare", Name: "Health", GuardrailLevel: model.GuardrailStrict},
	)
}

func TestPersonaService_SwitchReturnsPrevious(t *testing.T) {
	svc := NewPersonaService(testRegistry(), repository.NewMemoryPersonaStateRepository(), nil)
	ctx := context.Background()

	sw, err := svc.Switch(ctx, "acme", "healthcare")
	require.NoError(t, err)
	assert.Equal(t, "healthcare", sw.PersonaID)
	assert.Equal(t, "legal", sw.PreviousID)
	assert.GreaterOrEqual(t, sw.SwitchTimeMs, int64(0))

	_, active, err := svc.List(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "healthcare", active)

	_, err = svc.Switch(ctx, "acme", "astrology")
	assert.ErrorIs(t, err, persona.ErrPersonaNotFound)
}

func TestPersonaService_ResolveOrder(t *testing.T) {
	state := repository.NewMemoryPersonaStateRepository()
	svc := NewPersonaService(testRegistry(), state, nil)
	ctx := context.Background()

	p, err := svc.Resolve(ctx, "acme", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "legal", p.ID)

	_, _ = state.SetActive(ctx, "acme", "healthcare")
	p, err = svc.Resolve(ctx, "acme", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "healthcare", p.ID)

	p, err = svc.Resolve(ctx, "acme", "", "legal", "healthcare")
	require.NoError(t, err)
	assert.Equal(t, "legal", p.ID)

	_, err = svc.Resolve(ctx, "acme", "astrology")
	assert.ErrorIs(t, err, persona.ErrPersonaNotFound)
}

func TestPersonaService_StaleActiveFallsBackToDefault(t *testing.T) {
	state := repository.NewMemoryPersonaStateRepository()
	_, _ = state.SetActive(context.Background(), "acme", "retired")
	p, err := NewPersonaService(testRegistry(), state, nil).Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "legal", p.ID)
}

func TestPersonaService_MergesCorpusFiles(t *testing.T) {
	corpus := &fakeCorpus{files: map[string][]string{"legal": {"EU_AI_Act.pdf", "GDPR.pdf"}}}
	svc := NewPersonaService(testRegistry(), repository.NewMemoryPersonaStateRepository(), corpus)

	s, err := svc.Get(context.Background(), "legal")
	require.NoError(t, err)
	assert.Equal(t, []string{"GDPR.pdf", "EU_AI_Act.pdf"}, s.CorpusFiles)

	s, err = svc.Get(context.Background(), "healthcare")
	require.NoError(t, err)
	assert.Equal(t, []string{}, s.CorpusFiles)
}

func TestPersonaService_CorpusErrorKeepsConfiguredFiles(t *testing.T) {
	svc := NewPersonaService(testRegistry(), repository.NewMemoryPersonaStateRepository(), &fakeCorpus{err: errors.New("minio down")})
	s, err := svc.Get(context.Background(), "legal")
	require.NoError(t, err)
	assert.Equal(t, []string{"GDPR.pdf"}, s.CorpusFiles)
}
