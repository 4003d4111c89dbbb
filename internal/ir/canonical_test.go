package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	obj := Obj(
		O("number", IRString("F-7")),
		O("discount", IRInt(15)),
		O("client_id", IRInt(3)),
	)

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"client_id":3,"discount":15,"number":"F-7"}`, string(got))
}

func TestMarshalCanonical_Null(t *testing.T) {
	obj := Obj(O("date", IRNull{}), O("items", Arr()))

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"date":null,"items":[]}`, string(got))
}

func TestMarshalCanonical_RejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"total": 12.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(IRString("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonical_EscapesControlCharacters(t *testing.T) {
	got, err := MarshalCanonical(IRString("line\nnext\x01\"q\"\\"))
	require.NoError(t, err)
	assert.Equal(t, `"line\nnext\u0001\"q\"\\"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical(IRString("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))
}

func TestMarshalCanonical_NFCNormalizes(t *testing.T) {
	// precomposed U+00E9 vs "e" followed by combining acute accent
	composed, err := MarshalCanonical(IRString("caf\u00e9"))
	require.NoError(t, err)
	decomposed, err := MarshalCanonical(IRString("cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_NestedPlainValues(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"items": []any{map[string]any{"qty": 2, "tariff": "T1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"items":[{"qty":2,"tariff":"T1"}]}`, string(got))
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes to a surrogate pair starting 0xD83D, which sorts
	// before U+FF61 in UTF-16 but after it in UTF-8.
	obj := Obj(O("｡", IRInt(1)), O("\U0001F600", IRInt(2)))
	assert.Equal(t, []string{"\U0001F600", "｡"}, obj.SortedKeys())
}

func TestSnapshotDigest_StableAcrossConstruction(t *testing.T) {
	a := Obj(O("number", IRString("F-1")), O("discount", IRInt(0)))
	b := Obj(O("discount", IRInt(0)), O("number", IRString("F-1")))

	assert.Equal(t, MustSnapshotDigest(a), MustSnapshotDigest(b))
	assert.Len(t, MustSnapshotDigest(a), 64)

	b["discount"] = IRInt(15)
	assert.NotEqual(t, MustSnapshotDigest(a), MustSnapshotDigest(b))
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    IRValue
		wantErr bool
	}{
		{"nil", nil, IRNull{}, false},
		{"string", "x", IRString("x"), false},
		{"int", 5, IRInt(5), false},
		{"whole float", float64(7), IRInt(7), false},
		{"fraction", 7.5, nil, true},
		{"json number", json.Number("42"), IRInt(42), false},
		{"json fraction", json.Number("4.2"), nil, true},
		{"bool", true, IRBool(true), false},
		{"array", []any{1, "a"}, Arr(IRInt(1), IRString("a")), false},
		{"unsupported", struct{}{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig := Obj(O("items", Arr(Obj(O("qty", IRInt(1))))))
	cp := orig.Clone()

	cp["items"].(IRArray)[0].(IRObject)["qty"] = IRInt(9)

	assert.Equal(t, IRInt(1), orig["items"].(IRArray)[0].(IRObject)["qty"])
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(IRNull{}))
	assert.True(t, IsEmpty(IRString("  ")))
	assert.True(t, IsEmpty(Arr()))
	assert.False(t, IsEmpty(IRInt(0)))
	assert.False(t, IsEmpty(IRBool(false)))
	assert.False(t, IsEmpty(IRString("F-1")))
}

func TestIRObject_JSONRoundTrip(t *testing.T) {
	orig := Obj(O("date", IRNull{}), O("total", IRInt(1250)))

	data, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.Equal(t, `{"date":null,"total":1250}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, orig, back)
}
