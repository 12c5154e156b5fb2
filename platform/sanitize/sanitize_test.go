package sanitize

import (
	"reflect"
	"testing"
)

func TestTextStripsEncodedMarkup(t *testing.T) {
	got := Text("Call  back &lt;script&gt;alert(1)&lt;/script&gt;tomorrow\n  <b>after 5pm</b> ")
	want := "Call back alert(1)tomorrow\nafter 5pm"
	if got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestTagsDeduplicatesCaseInsensitively(t *testing.T) {
	got := Tags([]string{"Investor", " investor ", "", "<i>VIP</i>", "vip"})
	want := []string{"Investor", "VIP"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tags() = %#v, want %#v", got, want)
	}
}
