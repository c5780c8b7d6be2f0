package roster

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

func TestContactEqualIgnoresTransientFields(t *testing.T) {
	a := Contact{Name: "alice", GroupID: 1, ItemID: 10, Type: ItemBuddy, Alias: "Al"}
	b := Contact{Name: "alice", GroupID: 1, ItemID: 10, Type: ItemBuddy, AwaitingAuth: true,
		Attrs: wire.TLVChain{wire.NewTLV(0x013C, []byte("note"))}}

	assert.True(t, a.Equal(b))

	tests := []struct {
		name  string
		other Contact
	}{
		{"group", Contact{Name: "alice", GroupID: 2, ItemID: 10, Type: ItemBuddy}},
		{"item", Contact{Name: "alice", GroupID: 1, ItemID: 11, Type: ItemBuddy}},
		{"type", Contact{Name: "alice", GroupID: 1, ItemID: 10, Type: ItemIgnore}},
		{"name", Contact{Name: "bob", GroupID: 1, ItemID: 10, Type: ItemBuddy}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, a.Equal(tt.other))
		})
	}
}

func TestItemTypeWireTags(t *testing.T) {
	for itemType, tag := range wireTags {
		decoded, err := ItemTypeFromWire(tag)
		require.NoError(t, err)
		assert.Equal(t, itemType, decoded)
		assert.Equal(t, tag, itemType.WireTag())
	}

	_, err := ItemTypeFromWire(0x0099)
	assert.ErrorIs(t, err, ErrUnknownItemType)
	assert.Equal(t, "ignore", ItemIgnore.String())
}

func TestItemEncodeDecode(t *testing.T) {
	c := Contact{
		Name:         "123456789",
		GroupID:      3,
		ItemID:       0x1F2E,
		Type:         ItemBuddy,
		AwaitingAuth: true,
		Alias:        "Jürgen",
		Attrs:        wire.TLVChain{wire.NewTLV(0x013C, []byte("comment"))},
	}

	encoded, err := c.Encode()
	require.NoError(t, err)

	decoded, err := DecodeItem(encoded)
	require.NoError(t, err)
	assert.True(t, c.Equal(decoded))
	assert.True(t, decoded.AwaitingAuth)
	assert.Equal(t, "Jürgen", decoded.Alias)
	require.Len(t, decoded.Attrs, 1)
	assert.Equal(t, uint16(0x013C), decoded.Attrs[0].Type)
}

func TestDecodeItemTruncated(t *testing.T) {
	c := Contact{Name: "bob", GroupID: 1, ItemID: 2, Type: ItemGroup}
	encoded, err := c.Encode()
	require.NoError(t, err)

	for n := 0; n < len(encoded); n++ {
		_, err := DecodeItem(encoded[:n])
		assert.Error(t, err, "prefix of %d bytes", n)
	}
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "johndoe", NormalizeHandle("John Doe"))
	assert.Equal(t, "123456", NormalizeHandle("123456"))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c := Contact{Name: "Alice Smith", GroupID: 1, ItemID: 5, Type: ItemBuddy, Alias: "Ali",
		Attrs: wire.TLVChain{wire.NewTLV(0x013C, []byte("x"))}}
	require.NoError(t, store.Save(ctx, c))

	got, err := store.Get(ctx, 1, 5)
	require.NoError(t, err)
	assert.True(t, c.Equal(*got))
	assert.Equal(t, "Ali", got.Alias)
	require.Len(t, got.Attrs, 1)

	c.AwaitingAuth = true
	require.NoError(t, store.Save(ctx, c))
	got, err = store.Get(ctx, 1, 5)
	require.NoError(t, err)
	assert.True(t, got.AwaitingAuth)

	require.NoError(t, store.Delete(ctx, 1, 5))
	_, err = store.Get(ctx, 1, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, 1, 5), ErrNotFound)
}

func TestStoreLookupByHandle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Save(ctx, Contact{Name: "Buddy", GroupID: 0, ItemID: 1, Type: ItemGroup}))
	require.NoError(t, store.Save(ctx, Contact{Name: "Alice Smith", GroupID: 1, ItemID: 2, Type: ItemBuddy}))
	require.NoError(t, store.Save(ctx, Contact{Name: "spammer", GroupID: 1, ItemID: 3, Type: ItemBuddy}))
	require.NoError(t, store.Save(ctx, Contact{Name: "Spammer", GroupID: 0, ItemID: 4, Type: ItemIgnore}))

	got, err := store.LookupByHandle(ctx, "alicesmith")
	require.NoError(t, err)
	assert.Equal(t, ItemBuddy, got.Type)
	assert.True(t, got.Authorized())

	got, err = store.LookupByHandle(ctx, "SPAMMER")
	require.NoError(t, err)
	assert.Equal(t, ItemIgnore, got.Type, "ignore entry wins")

	_, err = store.LookupByHandle(ctx, "buddy")
	assert.ErrorIs(t, err, ErrNotFound, "group names are not senders")

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStoreInMemory(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), Contact{Name: "x", GroupID: 1, ItemID: 1, Type: ItemBuddy}))
	all, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
