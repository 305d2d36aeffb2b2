package diag

import (
	"strings"
	"testing"
)

func TestDisasmOneDecodesRet(t *testing.T) {
	// 0xC3 is RET with no operands in every x86-64 mode.
	got := DisasmOne([]byte{0xc3}, 0x400000)
	if !strings.Contains(strings.ToLower(got), "ret") {
		t.Errorf("DisasmOne(RET) = %q, want it to mention ret", got)
	}
}

func TestDisasmOneUndecodableYieldsPlaceholder(t *testing.T) {
	got := DisasmOne(nil, 0x400000)
	if !strings.HasPrefix(got, "<undecodable") {
		t.Errorf("DisasmOne(nil) = %q, want an <undecodable...> placeholder", got)
	}
}

func TestDisasmOneTruncatesOversizedWindow(t *testing.T) {
	code := make([]byte, disasmWindow*2)
	code[0] = 0xc3
	got := DisasmOne(code, 0x400000)
	if !strings.Contains(strings.ToLower(got), "ret") {
		t.Errorf("DisasmOne with an oversized window = %q, want it to still decode the leading ret", got)
	}
}
