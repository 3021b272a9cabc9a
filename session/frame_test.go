package session

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeFrameMalformed(t *testing.T) {
	for _, in := range []string{"", "not json", "[1,2]", `"output"`, "null", `{"output":`} {
		if _, _, err := DecodeFrame([]byte(in)); err == nil {
			t.Errorf("DecodeFrame(%q) succeeded, want error", in)
		}
	}
}

func TestDecodeFrameAllFields(t *testing.T) {
	f, errs, err := DecodeFrame([]byte(`{"output":"hi\n","rx":true,"tx":false,"rx_bps":12.5,"tx_bps":3,"mem_alloc":1000,"mem_free":2000,"extra":[1]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected field errors: %v", errs)
	}
	if f.Output == nil || *f.Output != "hi\n" {
		t.Errorf("Output = %v", f.Output)
	}
	want := Sample{RxActive: true, RxBps: f64(12.5), TxBps: f64(3), MemAlloc: i64(1000), MemFree: i64(2000)}
	if diff := cmp.Diff(want, f.Sample); diff != "" {
		t.Errorf("sample mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeFrameFieldIsolation(t *testing.T) {
	f, errs, err := DecodeFrame([]byte(`{"output":"router>","rx_bps":"fast","tx_bps":7,"mem_alloc":-5,"mem_free":1.5,"rx":"yes"}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Output == nil || *f.Output != "router>" {
		t.Errorf("Output lost: %v", f.Output)
	}
	if f.Sample.TxBps == nil || *f.Sample.TxBps != 7 {
		t.Errorf("TxBps lost: %v", f.Sample.TxBps)
	}
	if f.Sample.RxBps != nil || f.Sample.MemAlloc != nil || f.Sample.MemFree != nil || f.Sample.RxActive {
		t.Errorf("bad fields leaked into sample: %+v", f.Sample)
	}

	keys := map[string]bool{}
	for _, e := range errs {
		var fe *FieldError
		if !errors.As(e, &fe) {
			t.Fatalf("error %v is not a FieldError", e)
		}
		keys[fe.Key] = true
	}
	for _, k := range []string{"rx_bps", "mem_alloc", "mem_free", "rx"} {
		if !keys[k] {
			t.Errorf("missing field error for %q", k)
		}
	}
}

func TestDecodeFrameNullIsAbsent(t *testing.T) {
	f, errs, err := DecodeFrame([]byte(`{"output":null,"rx_bps":null}`))
	if err != nil || len(errs) != 0 {
		t.Fatalf("err=%v errs=%v", err, errs)
	}
	if f.Output != nil || !f.Sample.Empty() {
		t.Errorf("frame = %+v, want empty", f)
	}
}

func TestEncodeInput(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"show run", `{"input":"show run"}`},
		{"", `{"input":""}`},
		{`a"b`, `{"input":"a\"b"}`},
	} {
		got, err := EncodeInput(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Errorf("EncodeInput(%q) = %s, want %s", tt.in, got, tt.want)
		}
		text, ok, err := DecodeInput(got)
		if err != nil || !ok || text != tt.in {
			t.Errorf("DecodeInput(%s) = %q, %v, %v", got, text, ok, err)
		}
	}
}
