package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/cases/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	now := time.Now()

	first := models.NewDocument(models.DocumentIDProof, "passport.png", "s3://docs/1", map[string]string{"name": "Jane Doe"}, now)
	second := models.NewDocument(models.DocumentAddressProof, "bill.pdf", "s3://docs/2", nil, now.Add(time.Second))
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	t.Run("find by ids keeps request order", func(t *testing.T) {
		docs, err := store.FindByIDs(ctx, []id.DocumentID{second.ID, first.ID})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, second.ID, docs[0].ID)
		assert.Equal(t, first.ID, docs[1].ID)
	})

	t.Run("missing id fails the lookup", func(t *testing.T) {
		_, err := store.FindByIDs(ctx, []id.DocumentID{first.ID, id.NewDocumentID()})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("returned documents are copies", func(t *testing.T) {
		d, err := store.FindByID(ctx, first.ID)
		require.NoError(t, err)
		d.ExtractedData["name"] = "Mallory"

		again, err := store.FindByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", again.ExtractedData["name"])
	})

	t.Run("save and list by case", func(t *testing.T) {
		caseID := id.NewCaseID()
		for _, d := range []*models.Document{second, first} {
			d.CaseID = caseID
			require.NoError(t, store.Save(ctx, d))
		}
		docs, err := store.ListByCase(ctx, caseID)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, first.ID, docs[0].ID)
	})

	t.Run("save unknown document", func(t *testing.T) {
		err := store.Save(ctx, models.NewDocument(models.DocumentIDProof, "", "", nil, now))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
