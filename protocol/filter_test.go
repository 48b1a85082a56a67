// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package protocol_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/protocol"
)

// feed runs chunks through f the way a session does, following Next.
func feed(t *testing.T, f api.ReceiveFilter, chunks ...[]byte) []api.Package {
	t.Helper()
	var out []api.Package
	for _, chunk := range chunks {
		data := chunk
		for len(data) > 0 {
			pkg, rest, err := f.Filter(data)
			require.NoError(t, err)
			if pkg != nil {
				out = append(out, pkg)
			}
			if next := f.Next(); next != nil {
				f = next
			}
			require.Less(t, rest, len(data)+1)
			if pkg == nil && rest == len(data) && f.Next() == nil {
				break
			}
			data = data[len(data)-rest:]
		}
	}
	return out
}

func keysAndBodies(pkgs []api.Package) []string {
	out := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		switch v := p.(type) {
		case *api.StringPackage:
			out = append(out, v.Name+"|"+v.Body)
		case *api.BinaryPackage:
			out = append(out, v.Name+"|"+string(v.Body))
		case *api.HeaderPackage:
			out = append(out, v.Name+"|"+string(v.Body))
		case *protocol.HTTPRequest:
			out = append(out, v.Method+" "+v.Target+"|"+string(v.Body))
		default:
			out = append(out, p.Key())
		}
	}
	return out
}

func splitAt(stream []byte, cuts ...int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, c := range cuts {
		chunks = append(chunks, stream[prev:c])
		prev = c
	}
	return append(chunks, stream[prev:])
}

func randomChunks(r *rand.Rand, stream []byte) [][]byte {
	var chunks [][]byte
	for len(stream) > 0 {
		n := 1 + r.Intn(len(stream))
		if n > 7 {
			n = 1 + r.Intn(7)
		}
		chunks = append(chunks, stream[:n])
		stream = stream[n:]
	}
	return chunks
}

type filterCase struct {
	name   string
	newF   func() api.ReceiveFilter
	stream []byte
}

func filterCases() []filterCase {
	return []filterCase{
		{
			name:   "terminator",
			newF:   func() api.ReceiveFilter { return protocol.NewCommandLineFilter([]byte("##"), nil) },
			stream: []byte("ECHO hello##ADD 1 2##ECHO a#b##QUIT##"),
		},
		{
			name:   "terminator crlf",
			newF:   func() api.ReceiveFilter { return protocol.NewCommandLineFilter([]byte("\r\n"), nil) },
			stream: []byte("ECHO one\r\nECHO two\r\n\r\nECHO three\r\n"),
		},
		{
			name: "begin end",
			newF: func() api.ReceiveFilter {
				return protocol.NewBeginEndMarkFilter([]byte("!#"), []byte("$@"), protocol.BinaryResolver("MSG"))
			},
			stream: []byte("noise!#abc$@!#d$e$@garbage!#$@"),
		},
		{
			name: "count splitter",
			newF: func() api.ReceiveFilter {
				return protocol.NewCountSpliterFilter([]byte("#"), 4, 0, nil)
			},
			stream: []byte("#ECHO#a#b##ADD#1#2#"),
		},
		{
			name: "fixed size",
			newF: func() api.ReceiveFilter {
				return protocol.NewFixedSizeFilter(4, protocol.BinaryResolver("FIX"))
			},
			stream: []byte("abcdefghijkl"),
		},
		{
			name: "fixed header",
			newF: func() api.ReceiveFilter {
				return protocol.NewFixedHeaderFilter(6, protocol.BigEndianLength(4, 2), protocol.KeyedHeaderResolver(4))
			},
			stream: []byte("ECHO\x00\x03abcPING\x00\x00ADD \x00\x0212"),
		},
		{
			name:   "http",
			newF:   func() api.ReceiveFilter { return protocol.NewHTTPFilter(0) },
			stream: []byte("GET /a HTTP/1.1\r\nHost: x\r\n\r\nPOST /b HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhelloGET /c HTTP/1.1\r\nHost: x\r\n\r\n"),
		},
	}
}

func TestFiltersChunkingNeverChangesOutput(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, tc := range filterCases() {
		t.Run(tc.name, func(t *testing.T) {
			want := keysAndBodies(feed(t, tc.newF(), tc.stream))
			require.NotEmpty(t, want)

			for i := 1; i < len(tc.stream); i++ {
				got := keysAndBodies(feed(t, tc.newF(), splitAt(tc.stream, i)...))
				assert.Equal(t, want, got, "split at %d", i)
			}
			for i := 1; i < len(tc.stream); i++ {
				for j := i + 1; j < len(tc.stream); j++ {
					got := keysAndBodies(feed(t, tc.newF(), splitAt(tc.stream, i, j)...))
					require.Equal(t, want, got, "split at %d,%d", i, j)
				}
			}
			for n := 0; n < 50; n++ {
				got := keysAndBodies(feed(t, tc.newF(), randomChunks(r, tc.stream)...))
				require.Equal(t, want, got)
			}
		})
	}
}

func TestTerminatorPackages(t *testing.T) {
	f := protocol.NewCommandLineFilter([]byte("##"), nil)
	got := feed(t, f, []byte("ECHO hello##ADD 1 2##ECHO a#b##"))
	require.Len(t, got, 3)

	echo := got[0].(*api.StringPackage)
	assert.Equal(t, "ECHO", echo.Name)
	assert.Equal(t, "hello", echo.Body)

	add := got[1].(*api.StringPackage)
	assert.Equal(t, []string{"1", "2"}, add.Parameters)

	assert.Equal(t, "a#b", got[2].(*api.StringPackage).Body)
}

func TestTerminatorSplitAcrossReads(t *testing.T) {
	f := protocol.NewCommandLineFilter([]byte("##"), nil)

	pkg, rest, err := f.Filter([]byte("ECHO foo"))
	require.NoError(t, err)
	assert.Nil(t, pkg)
	assert.Zero(t, rest)
	assert.Equal(t, 8, f.LeftBufferSize())

	pkg, rest, err = f.Filter([]byte("##"))
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Zero(t, rest)
	assert.Equal(t, "ECHO", pkg.Key())
	assert.Equal(t, "foo", pkg.(*api.StringPackage).Body)
	assert.Zero(t, f.LeftBufferSize())
}

func TestTerminatorFalsePartialMatchIsRetracted(t *testing.T) {
	f := protocol.NewCommandLineFilter([]byte("\r\n\r\n"), nil)

	pkg, _, err := f.Filter([]byte("ECHO a\r\n"))
	require.NoError(t, err)
	assert.Nil(t, pkg)

	pkg, _, err = f.Filter([]byte("\rX"))
	require.NoError(t, err)
	assert.Nil(t, pkg)

	pkg, rest, err := f.Filter([]byte("\r\n\r\nECHO"))
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, 4, rest)
	assert.Equal(t, "a\r\n\rX", pkg.(*api.StringPackage).Body)
}

func TestTerminatorOverlappingMark(t *testing.T) {
	f := protocol.NewTerminatorFilter([]byte("aab"), protocol.BinaryResolver("X"))
	pkg, rest, err := f.Filter([]byte("xaa"))
	require.NoError(t, err)
	assert.Nil(t, pkg)
	pkg, rest, err = f.Filter([]byte("ab"))
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Zero(t, rest)
	assert.Equal(t, "xa", string(pkg.(*api.BinaryPackage).Body))
}

func TestBlankLinesAreSkipped(t *testing.T) {
	f := protocol.NewCommandLineFilter([]byte("\r\n"), nil)
	pkg, rest, err := f.Filter([]byte("\r\nECHO x\r\n"))
	require.NoError(t, err)
	assert.Nil(t, pkg)
	assert.Equal(t, 8, rest)
}

func TestBeginEndDiscardsLeadingBytes(t *testing.T) {
	f := protocol.NewBeginEndMarkFilter([]byte{0x02}, []byte{0x03}, protocol.BinaryResolver("B"))
	pkg, rest, err := f.Filter([]byte("junk\x02body\x03tail"))
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, "\x02body\x03", string(pkg.(*api.BinaryPackage).Body))
	assert.Equal(t, 4, rest)
}

func TestCountSpliterKeyIndex(t *testing.T) {
	f := protocol.NewCountSpliterFilter([]byte("#"), 5, 1, nil)
	got := feed(t, f, []byte("#id#LOGIN#alice#pw#"))
	require.Len(t, got, 1)
	p := got[0].(*api.StringPackage)
	assert.Equal(t, "LOGIN", p.Name)
	assert.Equal(t, []string{"id", "LOGIN", "alice", "pw"}, p.Parameters)
}

func TestCountSpliterMissingKeyIsFatal(t *testing.T) {
	f := protocol.NewCountSpliterFilter([]byte("#"), 3, 0, nil)
	_, _, err := f.Filter([]byte("##x#"))
	require.ErrorIs(t, err, api.ErrMalformedPackage)
	assert.Equal(t, api.FilterError, f.State())
}

func TestFixedHeaderBody(t *testing.T) {
	f := protocol.NewFixedHeaderFilter(6, protocol.BigEndianLength(4, 2), protocol.KeyedHeaderResolver(4))
	pkg, rest, err := f.Filter([]byte("ECHO\x00\x05"))
	require.NoError(t, err)
	assert.Nil(t, pkg)
	assert.Zero(t, rest)
	pkg, rest, err = f.Filter([]byte("hello+"))
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, 1, rest)
	hp := pkg.(*api.HeaderPackage)
	assert.Equal(t, "ECHO", hp.Name)
	assert.Equal(t, "hello", string(hp.Body))
}

func TestHTTPBodyFilterChainsBack(t *testing.T) {
	head := protocol.NewHTTPFilter(0)
	pkg, rest, err := head.Filter([]byte("POST /x HTTP/1.1\r\nContent-Length: 3\r\n\r\nab"))
	require.NoError(t, err)
	assert.Nil(t, pkg)
	assert.Equal(t, 2, rest)

	body := head.Next()
	require.NotNil(t, body)
	pkg, rest, err = body.Filter([]byte("ab"))
	require.NoError(t, err)
	assert.Nil(t, pkg)
	assert.Zero(t, rest)
	assert.Equal(t, 2, body.LeftBufferSize())

	pkg, rest, err = body.Filter([]byte("cGET"))
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, 3, rest)
	req := pkg.(*protocol.HTTPRequest)
	assert.Equal(t, "POST", req.Key())
	assert.Equal(t, "abc", string(req.Body))
	assert.Same(t, head, body.Next())
	assert.Nil(t, head.Next())
}

func TestHTTPHeaderLimit(t *testing.T) {
	f := protocol.NewHTTPFilter(16)
	_, _, err := f.Filter([]byte("GET /a-very-long-target HTTP/1.1\r\n"))
	require.ErrorIs(t, err, api.ErrPackageTooLarge)
}

func TestUDPRequestFilter(t *testing.T) {
	sid := "2f1d8a6e-3c0b-4f7e-9d51-7a0e5b8c9d10"
	dgram := protocol.EncodeUDPRequest("ECHO", sid, []byte("payload"), protocol.DefaultUDPNameSize, protocol.DefaultUDPKeySize)
	require.Len(t, dgram, 40+7)

	key, err := protocol.UDPKeyExtractor(protocol.DefaultUDPNameSize, protocol.DefaultUDPKeySize)(dgram)
	require.NoError(t, err)
	assert.Equal(t, sid, key)

	pkg, rest, err := protocol.NewUDPRequestFilter().Filter(dgram)
	require.NoError(t, err)
	assert.Zero(t, rest)
	req := pkg.(*protocol.UDPRequest)
	assert.Equal(t, "ECHO", req.Key())
	assert.Equal(t, sid, req.SessionKey())
	assert.Equal(t, "payload", string(req.Body))

	_, _, err = protocol.NewUDPRequestFilter().Filter([]byte("short"))
	require.ErrorIs(t, err, api.ErrMalformedPackage)
}
