package dedup

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newSQLiteKV(t *testing.T) *SQLiteKV {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "dedup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	kv, err := NewSQLiteKV(context.Background(), db)
	require.NoError(t, err)
	return kv
}

func newRedisKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisKV(rdb, "jobrelay"), mr
}

// backends runs fn against every KV implementation.
func backends(t *testing.T, fn func(t *testing.T, kv KV)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteKV(t)) })
	t.Run("redis", func(t *testing.T) {
		kv, _ := newRedisKV(t)
		fn(t, kv)
	})
}

// ── Normalization ──

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"  Data   ANALYST ", "Straße", "محلل   بيانات", "", "Bank\tX\n"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
	assert.Equal(t, "data analyst", Normalize("  Data   ANALYST "))
	assert.Equal(t, "bank x", Normalize("Bank\tX\n"))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "data analyst|bank x", Fingerprint("Data Analyst", "BANK  X"))
	assert.Equal(t, "engineer|", Fingerprint("Engineer", ""))
}

// ── Deduper ──

// TestMarkPublished_WritesBothKeys verifies a publication blocks identity and fingerprint
func TestMarkPublished_WritesBothKeys(t *testing.T) {
	backends(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		d := New(kv, 0)

		v, err := d.Check(ctx, "siteA:1", "Data Analyst", "Bank X")
		require.NoError(t, err)
		assert.False(t, v.Duplicate)

		require.NoError(t, d.MarkPublished(ctx, "siteA:1", "Data Analyst", "Bank X"))

		keys, err := d.List(ctx, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"posted:siteA:1", "fp:data analyst|bank x"}, keys)

		v, err = d.Check(ctx, "siteA:1", "Data Analyst", "Bank X")
		require.NoError(t, err)
		assert.True(t, v.Duplicate)
		assert.Equal(t, ReasonIdentity, v.Reason)

		rec, err := d.Lookup(ctx, "posted:siteA:1")
		require.NoError(t, err)
		assert.Equal(t, "Data Analyst", rec.Title)
		assert.Equal(t, "Bank X", rec.Company)
	})
}

// TestCheck_CrossSourceFingerprint verifies the same posting from another source is a duplicate
func TestCheck_CrossSourceFingerprint(t *testing.T) {
	backends(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		d := New(kv, 0)
		require.NoError(t, d.MarkPublished(ctx, "siteA:1", "Data Analyst", "Bank X"))

		v, err := d.Check(ctx, "siteB:99", "  data analyst", "BANK X ")
		require.NoError(t, err)
		assert.True(t, v.Duplicate)
		assert.Equal(t, ReasonFingerprint, v.Reason)
	})
}

// TestForget_KeysAreIndependent verifies each key can be deleted on its own
func TestForget_KeysAreIndependent(t *testing.T) {
	backends(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		d := New(kv, 0)
		require.NoError(t, d.MarkPublished(ctx, "siteA:1", "Data Analyst", "Bank X"))

		ok, err := d.ForgetIdentity(ctx, "siteA:1")
		require.NoError(t, err)
		assert.True(t, ok)

		v, err := d.Check(ctx, "siteA:1", "Data Analyst", "Bank X")
		require.NoError(t, err)
		assert.True(t, v.Duplicate, "fingerprint still blocks")
		assert.Equal(t, ReasonFingerprint, v.Reason)

		ok, err = d.ForgetFingerprint(ctx, "Data Analyst", "Bank X")
		require.NoError(t, err)
		assert.True(t, ok)

		v, err = d.Check(ctx, "siteA:1", "Data Analyst", "Bank X")
		require.NoError(t, err)
		assert.False(t, v.Duplicate)

		ok, err = d.ForgetIdentity(ctx, "siteA:1")
		require.NoError(t, err)
		assert.False(t, ok, "second delete is a no-op")
	})
}

func TestList_Prefix(t *testing.T) {
	backends(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		d := New(kv, 0)
		require.NoError(t, d.MarkPublished(ctx, "a:1", "T1", "C"))
		require.NoError(t, d.MarkPublished(ctx, "a:2", "T2", "C"))

		keys, err := d.List(ctx, IdentityPrefix)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"posted:a:1", "posted:a:2"}, keys)
	})
}

// TestList_PrefixIsLiteral verifies glob metacharacters in a prefix match
// only themselves.
func TestList_PrefixIsLiteral(t *testing.T) {
	backends(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		for _, k := range []string{"posted:a*b:1", "posted:axb:1", "posted:a?[1]:2", "posted:ab[1]:2"} {
			require.NoError(t, kv.Put(ctx, k, "v", time.Hour))
		}

		keys, err := kv.List(ctx, "posted:a*")
		require.NoError(t, err)
		assert.Equal(t, []string{"posted:a*b:1"}, keys)

		keys, err = kv.List(ctx, "posted:a?[1]")
		require.NoError(t, err)
		assert.Equal(t, []string{"posted:a?[1]:2"}, keys)
	})
}

// ── Expiry ──

// TestRedis_TTL verifies keys expire after the configured TTL
func TestRedis_TTL(t *testing.T) {
	kv, mr := newRedisKV(t)
	ctx := context.Background()
	d := New(kv, time.Hour)
	require.NoError(t, d.MarkPublished(ctx, "a:1", "T", "C"))

	assert.Equal(t, time.Hour, mr.TTL("jobrelay:posted:a:1"))

	mr.FastForward(2 * time.Hour)
	v, err := d.Check(ctx, "a:1", "T", "C")
	require.NoError(t, err)
	assert.False(t, v.Duplicate)
}

// TestSQLite_ExpiryAndPurge verifies expired rows are ignored and purged
func TestSQLite_ExpiryAndPurge(t *testing.T) {
	kv := newSQLiteKV(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Put(ctx, "posted:a:1", "{}", time.Hour))
	_, err := kv.Get(ctx, "posted:a:1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = kv.Get(ctx, "posted:a:1")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := kv.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// TestRedis_Unreachable verifies connection errors surface from the constructor
func TestRedis_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "redis://127.0.0.1:1")
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), "::bad")
	assert.Error(t, err)
}

var (
	_ KV = (*RedisKV)(nil)
	_ KV = (*SQLiteKV)(nil)
)
