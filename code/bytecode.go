package code

import (
	"regexp"
	"strconv"
	"strings"
)

var libraryPlaceholder = regexp.MustCompile(`__.{36}__`)

const (
	addressHexLen = 40
	// PUSH20 <zero address> ADDRESS EQ, the call guard of a deployed library
	libraryGuardPrefix = "73" + "0000000000000000000000000000000000000000" + "3014"
)

// MatchBytecode compares on-chain code with a compiled object. Library link
// placeholders and the trailing CBOR metadata are ignored. Creation code
// may carry constructor arguments after the compiled object.
func MatchBytecode(onChain, compiled string, creation bool) bool {
	onChain = strings.ToLower(strings.TrimPrefix(onChain, "0x"))
	compiled = strings.TrimPrefix(compiled, "0x")
	if compiled == "" {
		// abstract contracts and interfaces have no code
		return false
	}
	if onChain == strings.ToLower(compiled) {
		return true
	}

	if strings.HasPrefix(compiled, libraryGuardPrefix) {
		onChain = zeroAt(onChain, 2)
	}
	for _, loc := range libraryPlaceholder.FindAllStringIndex(compiled, -1) {
		compiled = zeroAt(compiled, loc[0])
		onChain = zeroAt(onChain, loc[0])
	}
	compiled = strings.ToLower(compiled)

	compiled = stripMetadata(compiled)
	if creation {
		return strings.HasPrefix(onChain, compiled)
	}
	return stripMetadata(onChain) == compiled
}

func zeroAt(code string, pos int) string {
	if pos+addressHexLen > len(code) {
		return code
	}
	return code[:pos] + strings.Repeat("0", addressHexLen) + code[pos+addressHexLen:]
}

// stripMetadata removes the CBOR metadata section whose length is stored in
// the last two bytes.
func stripMetadata(code string) string {
	if len(code) < 4 {
		return code
	}
	n, err := strconv.ParseUint(code[len(code)-4:], 16, 16)
	if err != nil {
		return code
	}
	start := len(code) - 4 - 2*int(n)
	if n == 0 || start < 0 {
		return code
	}
	// CBOR map header
	if head := code[start : start+1]; head != "a" && head != "b" {
		return code
	}
	return code[:start]
}
