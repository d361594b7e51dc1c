package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileURLGlob(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		match   bool
	}{
		{pattern: "**/my-account/orders", url: "https://www.swiggy.com/my-account/orders", match: true},
		{pattern: "**/my-account/orders", url: "https://www.swiggy.com/my-account/orders?tab=past", match: true},
		{pattern: "**/my-account/orders", url: "https://www.swiggy.com/my-account", match: false},
		{pattern: "https://*.swiggy.com/*", url: "https://www.swiggy.com/restaurants", match: true},
		{pattern: "https://*.swiggy.com/*", url: "https://www.swiggy.com/a/b", match: false},
		{pattern: "**/orders/?", url: "https://x.test/orders/7", match: true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.url, func(t *testing.T) {
			re, err := compileURLGlob(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.url))
		})
	}

	_, err := compileURLGlob("")
	assert.Error(t, err)
}

func TestItemHandle(t *testing.T) {
	assert.Equal(t, "(//*[normalize-space(text())='VIEW DETAILS'])[3]", ItemHandle("VIEW DETAILS", 3))
	assert.Equal(t, `(//*[normalize-space(text())="it's here"])[1]`, ItemHandle("it's here", 1))
	assert.Equal(t,
		`(//*[normalize-space(text())=concat('a"b',"'",'c')])[1]`,
		ItemHandle(`a"b'c`, 1))
}

func TestSelectors_Validate(t *testing.T) {
	assert.NoError(t, DefaultSelectors().Validate())

	sel := DefaultSelectors()
	sel.OrderID = " "
	err := sel.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order_id")
}
