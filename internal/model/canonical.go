package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// DomainEvent prefixes event identity hashes.
// Version suffix enables future algorithm migration.
const DomainEvent = "flowrl/event/v1"

// Key returns the content-addressed identity of the event.
//
// The key is SHA-256 over a canonical JSON encoding of every field: object keys
// sorted, strings NFC normalized, no HTML escaping. Two events with the same
// field tuple always produce the same key.
func (e Event) Key() string {
	ctx := make([][]byte, len(e.Configuration))
	for i, c := range e.Configuration {
		ctx[i] = canonicalObject(map[string][]byte{
			"name":  canonicalString(c.Name),
			"value": canonicalString(c.Value),
		})
	}
	obj := canonicalObject(map[string][]byte{
		"action":        canonicalString(e.ActionName),
		"category":      canonicalString(e.Category),
		"company_id":    []byte(strconv.Itoa(e.CompanyID)),
		"configuration": canonicalArray(ctx),
		"screen":        canonicalString(e.ScreenName),
		"timestamp":     []byte(strconv.FormatInt(e.Timestamp, 10)),
		"user_id":       canonicalString(e.UserID),
	})
	return hashWithDomain(DomainEvent, obj)
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalString encodes s as a JSON string after NFC normalization.
// <, > and & are not escaped.
func canonicalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}

func canonicalArray(elems [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, el := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(el)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// canonicalObject writes pre-encoded members with keys in sorted order.
// Keys are ASCII, so byte order matches UTF-16 code unit order.
func canonicalObject(members map[string][]byte) []byte {
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(canonicalString(k))
		buf.WriteByte(':')
		buf.Write(members[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}
