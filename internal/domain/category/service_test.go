package category

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	byID map[ID]*Category
}

func newMockRepo(cats ...Category) *mockRepo {
	m := &mockRepo{byID: map[ID]*Category{}}
	for i := range cats {
		m.byID[cats[i].ID] = &cats[i]
	}
	return m
}

func (m *mockRepo) List(context.Context) ([]Category, error) {
	out := make([]Category, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id ID) (*Category, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) GetBySlug(_ context.Context, sl string) (*Category, error) {
	for _, c := range m.byID {
		if c.Slug == sl {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Exists(_ context.Context, id ID) (bool, error) {
	_, ok := m.byID[id]
	return ok, nil
}

func (m *mockRepo) Create(_ context.Context, c *Category) error {
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *mockRepo) Update(_ context.Context, c *Category) error {
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id ID) error {
	delete(m.byID, id)
	return nil
}

func TestService_CreateUniqueSlug(t *testing.T) {
	repo := newMockRepo(Category{ID: NewID(), NameEN: "Spices", Slug: "spices"})
	svc := NewService(repo)

	c := &Category{NameEN: " Spices ", NameKM: "គ្រឿងទេស", Icon: "🌶"}
	require.NoError(t, svc.Create(context.Background(), c))
	assert.Equal(t, "spices-2", c.Slug)
	assert.False(t, c.ID.IsZero())
	assert.Equal(t, "Spices", c.NameEN)
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(newMockRepo())

	var fe *InvalidFieldError
	require.ErrorAs(t, svc.Create(context.Background(), &Category{}), &fe)
	assert.Equal(t, "nameEn", fe.Field)

	require.ErrorAs(t, svc.Create(context.Background(), &Category{NameEN: "គ្រឿងទេស"}), &fe)
}

func TestService_UpdateKeepsOwnSlug(t *testing.T) {
	id := NewID()
	repo := newMockRepo(Category{ID: id, NameEN: "Tea", Slug: "tea"})
	svc := NewService(repo)

	c := &Category{ID: id, NameEN: "Tea", Icon: "🍵"}
	require.NoError(t, svc.Update(context.Background(), c))
	assert.Equal(t, "tea", c.Slug)

	c = &Category{ID: id, NameEN: "Tea & Coffee"}
	require.NoError(t, svc.Update(context.Background(), c))
	assert.Equal(t, "tea-coffee", c.Slug)

	err := svc.Update(context.Background(), &Category{ID: NewID(), NameEN: "X"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseID(t *testing.T) {
	id := NewID()
	got, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseID("spices")
	require.Error(t, err)
}
