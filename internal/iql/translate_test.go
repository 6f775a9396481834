package iql

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply string
	err   error
	calls int
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestTranslateTemplateProviderQueries(t *testing.T) {
	tr := NewTranslator(nil, 0.7)
	cases := []struct {
		text string
		want string
	}{
		{"show all aws resources", `FIND resources WHERE provider = "aws"`},
		{"list compute in us-east-1", `FIND resources WHERE resourceType = "compute" AND region = "us-east-1"`},
		{`what depends on "aws:123:us-east-1:database:db-1"?`, `FIND downstream OF "aws:123:us-east-1:database:db-1"`},
		{`what does "aws:123:us-east-1:compute:i-1" depend on`, `FIND upstream OF "aws:123:us-east-1:compute:i-1"`},
		{"how many resources by provider", `SUMMARIZE COUNT BY provider`},
		{"cost per region", `SUMMARIZE COST BY region`},
	}
	for _, tc := range cases {
		got, err := tr.Translate(context.Background(), tc.text)
		require.NoError(t, err, "text %q", tc.text)
		assert.Equal(t, tc.want, got.IQL, "text %q", tc.text)
		assert.Equal(t, "template", got.Source)
		assert.GreaterOrEqual(t, got.Confidence, 0.7)
	}
}

func TestTranslateFallsBackToModel(t *testing.T) {
	provider := &fakeProvider{reply: "FIND resources WHERE status = \"stopped\""}
	tr := NewTranslator(provider, 0.7)

	got, err := tr.Translate(context.Background(), "which machines are turned off right now")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "model", got.Source)
	assert.Equal(t, `FIND resources WHERE status = "stopped"`, got.IQL)
}

func TestTranslateTemplateWinsOverModel(t *testing.T) {
	provider := &fakeProvider{reply: `FIND resources`}
	tr := NewTranslator(provider, 0.7)

	got, err := tr.Translate(context.Background(), "show all gcp resources")
	require.NoError(t, err)
	assert.Equal(t, "template", got.Source)
	assert.Zero(t, provider.calls)
	assert.Equal(t, `FIND resources WHERE provider = "gcp"`, got.IQL)
}

func TestTranslateRejectsInvalidModelOutput(t *testing.T) {
	provider := &fakeProvider{reply: "SELECT * FROM nodes"}
	tr := NewTranslator(provider, 0.7)

	_, err := tr.Translate(context.Background(), "give me everything in sql please")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid IQL")
}

func TestTranslateModelErrorPropagates(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream timeout")}
	tr := NewTranslator(provider, 0.7)

	_, err := tr.Translate(context.Background(), "some phrasing no template knows")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model completion")
}

func TestTranslateWithoutProviderNeedsTemplate(t *testing.T) {
	tr := NewTranslator(nil, 0.7)
	_, err := tr.Translate(context.Background(), "an utterly free-form request")
	require.Error(t, err)

	_, err = tr.Translate(context.Background(), "   ")
	require.Error(t, err)
}

func TestTranslateStripsModelFences(t *testing.T) {
	provider := &fakeProvider{reply: "`SUMMARIZE COUNT BY provider`"}
	tr := NewTranslator(provider, 0.7)

	got, err := tr.Translate(context.Background(), "tally everything up somehow")
	require.NoError(t, err)
	assert.Equal(t, `SUMMARIZE COUNT BY provider`, got.IQL)
}
