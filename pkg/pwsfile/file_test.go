package pwsfile

import (
	"bytes"
	"crypto/rand"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/pwsafe/pkg/crypto"
	"github.com/forest6511/pwsafe/pkg/field"
	"github.com/forest6511/pwsafe/pkg/record"
	"github.com/forest6511/pwsafe/pkg/stream"
)

var passphrase = []byte("correct horse battery staple")

func populated(t *testing.T, v field.Version) *File {
	t.Helper()
	f, err := New(v)
	require.NoError(t, err)

	entries := []struct{ title, user, pass, group string }{
		{"gmail", "alice", "s3cret!", "Work.Email"},
		{"bank", "", "hunter2", ""},
		{"café", "bob", "naïve", "Home"},
	}
	for _, e := range entries {
		rec, err := record.New(v, rand.Reader)
		require.NoError(t, err)
		require.NoError(t, rec.SetTitle(e.title))
		if e.user != "" {
			require.NoError(t, rec.SetUsername(e.user))
		}
		require.NoError(t, rec.SetPassword(e.pass))
		require.NoError(t, rec.SetNotes("notes for "+e.title))
		if v != field.V1 {
			require.NoError(t, rec.SetGroup(e.group))
		}
		_, err = f.Store().Append(rec)
		require.NoError(t, err)
	}
	return f
}

func TestRoundTrip(t *testing.T) {
	for _, v := range []field.Version{field.V1, field.V2, field.V3} {
		t.Run(v.String(), func(t *testing.T) {
			f := populated(t, v)

			var buf bytes.Buffer
			require.NoError(t, f.Write(&buf, passphrase, rand.Reader))

			got, err := Read(bytes.NewReader(buf.Bytes()), passphrase)
			require.NoError(t, err)
			assert.Equal(t, v, got.Version())
			require.Equal(t, f.Store().Len(), got.Store().Len())

			want := f.Store().Records()
			for i, rec := range got.Store().Records() {
				assert.True(t, want[i].Equal(rec), "record %d", i)
			}
			assert.Equal(t, "alice", got.Store().SparseEntries()[0].Username)
		})
	}
}

func TestEmptyFile(t *testing.T) {
	for _, v := range []field.Version{field.V1, field.V2, field.V3} {
		t.Run(v.String(), func(t *testing.T) {
			f, err := New(v)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, f.Write(&buf, passphrase, rand.Reader))
			got, err := Read(&buf, passphrase)
			require.NoError(t, err)
			assert.Equal(t, v, got.Version())
			assert.Equal(t, 0, got.Store().Len())
		})
	}
}

func TestSizeHint(t *testing.T) {
	for _, v := range []field.Version{field.V1, field.V2, field.V3} {
		t.Run(v.String(), func(t *testing.T) {
			empty, err := New(v)
			require.NoError(t, err)
			f := populated(t, v)
			assert.Greater(t, f.sizeHint(), empty.sizeHint())

			var buf bytes.Buffer
			require.NoError(t, f.Write(&buf, passphrase, rand.Reader))
			assert.LessOrEqual(t, buf.Len(), f.sizeHint())
		})
	}
}

func TestDeterministicWrite(t *testing.T) {
	f := populated(t, field.V3)

	var a, b bytes.Buffer
	require.NoError(t, f.Write(&a, passphrase, mathrand.New(mathrand.NewSource(7))))
	require.NoError(t, f.Write(&b, passphrase, mathrand.New(mathrand.NewSource(7))))
	assert.Equal(t, a.Bytes(), b.Bytes())

	var c bytes.Buffer
	require.NoError(t, f.Write(&c, passphrase, mathrand.New(mathrand.NewSource(8))))
	assert.NotEqual(t, a.Bytes(), c.Bytes())
}

func TestWrongPassphrase(t *testing.T) {
	for _, v := range []field.Version{field.V2, field.V3} {
		t.Run(v.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, populated(t, v).Write(&buf, passphrase, rand.Reader))
			_, err := Read(&buf, []byte("wrong"))
			assert.ErrorIs(t, err, ErrInvalidPassphrase)
		})
	}
}

func TestEmptyPassphrase(t *testing.T) {
	f, err := New(field.V3)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Write(&bytes.Buffer{}, nil, rand.Reader), ErrEmptyPassphrase)
	_, err = Read(bytes.NewReader([]byte("PWS3")), nil)
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}

func TestV3Tampering(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, populated(t, field.V3).Write(&buf, passphrase, rand.Reader))
	data := buf.Bytes()

	t.Run("hmac", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)-1] ^= 0x01
		_, err := Read(bytes.NewReader(bad), passphrase)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("missing trailer", func(t *testing.T) {
		bad := bytes.Clone(data[:len(data)-len(v3EOF)-v3MACLength])
		_, err := Read(bytes.NewReader(bad), passphrase)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := Read(bytes.NewReader(data[:40]), passphrase)
		assert.ErrorIs(t, err, ErrUnknownFormat)
	})
}

func TestLegacyTruncatedCiphertext(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, populated(t, field.V2).Write(&buf, passphrase, rand.Reader))
	data := buf.Bytes()

	_, err := Read(bytes.NewReader(data[:len(data)-3]), passphrase)
	assert.ErrorIs(t, err, stream.ErrTruncatedBlock)

	_, err = Read(bytes.NewReader(data[:10]), passphrase)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestV2MarkerHidden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, populated(t, field.V2).Write(&buf, passphrase, rand.Reader))

	got, err := Read(&buf, passphrase)
	require.NoError(t, err)
	for _, e := range got.Store().SparseEntries() {
		assert.NotEqual(t, v2MarkerTitle, e.Title)
	}
	assert.Equal(t, 3, got.Store().Len())
}

func TestIterations(t *testing.T) {
	f, err := New(field.V3)
	require.NoError(t, err)
	assert.Equal(t, uint32(crypto.MinStretchIterations), f.Iterations())

	assert.ErrorIs(t, f.SetIterations(100), ErrIterations)
	require.NoError(t, f.SetIterations(4096))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf, passphrase, rand.Reader))
	got, err := Read(&buf, passphrase)
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), got.Iterations())
}

func TestUnsupportedVersion(t *testing.T) {
	_, err := New(field.Version(9))
	assert.ErrorIs(t, err, record.ErrUnsupportedVersion)
}

func TestSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.psafe3")

	f := populated(t, field.V3)
	require.NoError(t, f.Save(path, passphrase))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(FileMode), info.Mode().Perm())
	}

	got, err := Open(path, passphrase)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Store().Len())

	// change passphrase by saving under a new one
	newPass := []byte("new passphrase")
	require.NoError(t, got.Save(path, newPass))
	_, err = Open(path, passphrase)
	assert.ErrorIs(t, err, ErrInvalidPassphrase)
	_, err = Open(path, newPass)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	_, err = Open(filepath.Join(dir, "missing"), passphrase)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
