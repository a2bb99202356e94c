package calibre

import (
	"context"
	"errors"
	"testing"

	"github.com/italolelis/loan_downloader/internal/cmdexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []call
	res   cmdexec.Result
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (cmdexec.Result, error) {
	f.calls = append(f.calls, call{name: name, args: args})

	return f.res, f.err
}

func TestParseBookID(t *testing.T) {
	tests := []struct {
		output string
		want   int64
		ok     bool
	}{
		{output: "Added book ids: 42", want: 42, ok: true},
		{output: "Backing up metadata\nAdded book id: 7\n", want: 7, ok: true},
		{output: "Merged book ids: 3, 4", want: 3, ok: true},
		{output: "The following books were not added as they already exist", ok: false},
		{output: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			got, ok := ParseBookID(tt.output)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSwapExt(t *testing.T) {
	assert.Equal(t, "/downloads/bookx.epub", SwapExt("/downloads/bookx.azw3", "epub"))
	assert.Equal(t, "/dl/azw3.dir/b.epub", SwapExt("/dl/azw3.dir/b.azw3", ".epub"))
}

func TestClient_Import(t *testing.T) {
	runner := &fakeRunner{res: cmdexec.Result{Stdout: "Added book ids: 42\n"}}
	c := NewClient(runner, "/books", WithCalibreDB("/opt/calibre/calibredb"))

	id, err := c.Import(context.Background(), "/downloads/bookx.azw3")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "/opt/calibre/calibredb", runner.calls[0].name)
	assert.Equal(t,
		[]string{"add", "--automerge=overwrite", "/downloads/bookx.azw3", "--with-library", "/books"},
		runner.calls[0].args,
	)
}

func TestClient_ImportWithoutID(t *testing.T) {
	c := NewClient(&fakeRunner{res: cmdexec.Result{Stdout: "nothing added"}}, "/books")

	_, err := c.Import(context.Background(), "/downloads/bookx.azw3")

	var importErr *ImportError
	require.True(t, errors.As(err, &importErr))
	assert.Equal(t, "/downloads/bookx.azw3", importErr.Path)
}

func TestClient_ImportCommandFailure(t *testing.T) {
	boom := errors.New("exit status 1")
	c := NewClient(&fakeRunner{err: boom}, "/books")

	_, err := c.Import(context.Background(), "/downloads/bookx.azw3")

	var importErr *ImportError
	require.True(t, errors.As(err, &importErr))
	assert.ErrorIs(t, err, boom)
}

func TestClient_Convert(t *testing.T) {
	runner := &fakeRunner{}
	c := NewClient(runner, "/books", WithEbookConvert("ebook-convert"), WithOutputProfile("kindle_oasis"))

	dst, err := c.Convert(context.Background(), "/downloads/bookx.azw3", "epub")
	require.NoError(t, err)
	assert.Equal(t, "/downloads/bookx.epub", dst)
	assert.Equal(t,
		[]string{"/downloads/bookx.azw3", "/downloads/bookx.epub", "--output-profile", "kindle_oasis"},
		runner.calls[0].args,
	)
}

func TestClient_AddFormatFailure(t *testing.T) {
	c := NewClient(&fakeRunner{err: errors.New("exit status 1")}, "/books")

	err := c.AddFormat(context.Background(), 42, "/downloads/bookx.epub")

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "add_format", cmdErr.Operation)
}

func TestClient_FormatPath(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{
			name:   "single entry",
			output: `[{"formats": ["/books/X/bookx.azw3", "/books/X/bookx.EPUB"], "id": 42}]`,
			want:   "/books/X/bookx.EPUB",
		},
		{name: "no entries", output: `[]`, wantErr: true},
		{
			name:    "two entries",
			output:  `[{"formats": [], "id": 42}, {"formats": [], "id": 43}]`,
			wantErr: true,
		},
		{
			name:    "format missing",
			output:  `[{"formats": ["/books/X/bookx.azw3"], "id": 42}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{res: cmdexec.Result{Stdout: tt.output}}
			c := NewClient(runner, "/books")

			got, err := c.FormatPath(context.Background(), 42, "epub")
			if tt.wantErr {
				var missing *MissingPathError
				require.True(t, errors.As(err, &missing))
				assert.Equal(t, int64(42), missing.ID)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t,
				[]string{"list", "--with-library", "/books", "--search", "id:42", "--fields=formats", "--for-machine"},
				runner.calls[0].args,
			)
		})
	}
}

func TestClient_FormatPathBadJSON(t *testing.T) {
	c := NewClient(&fakeRunner{res: cmdexec.Result{Stdout: "not json"}}, "/books")

	_, err := c.FormatPath(context.Background(), 42, "epub")

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "list", cmdErr.Operation)
}

func TestMailer_Send(t *testing.T) {
	runner := &fakeRunner{}
	m := NewMailer(runner, "", SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "me",
		Password: "secret",
		From:     "me@example.com",
	})

	require.NoError(t, m.Send(context.Background(), "/books/X/bookx.epub", "reader@kindle.com"))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "calibre-smtp", runner.calls[0].name)
	assert.Equal(t, []string{
		"--attachment", "/books/X/bookx.epub",
		"--relay", "smtp.example.com",
		"--port", "587",
		"--username", "me",
		"--password", "secret",
		"--encryption-method", "TLS",
		"me@example.com",
		"reader@kindle.com",
		"Automated delivery of bookx.epub",
	}, runner.calls[0].args)
}

func TestMailer_SendFailure(t *testing.T) {
	m := NewMailer(&fakeRunner{err: errors.New("relay refused")}, "calibre-smtp", SMTPConfig{})

	err := m.Send(context.Background(), "/books/X/bookx.epub", "reader@kindle.com")

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "smtp", cmdErr.Operation)
}
