package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdxmph/imgdedup/pkg/types"
)

func TestProcess(t *testing.T) {
	dup := BuildVariables("b1", types.DecisionView{
		Name: "b.jpg", Family: "image", Status: "duplicate", MatchedLabel: "a.jpg", Distance: 3,
	})
	acc := BuildVariables("b1", types.DecisionView{
		Name: "a.jpg", Family: "image", Status: "accepted", Key: "00ff", MIME: "image/jpeg", Path: "uploaded_files/a.jpg",
	})

	defaults := DefaultTemplates()
	assert.Equal(t, "duplicate\tb.jpg\ta.jpg", Process(defaults["text"], dup))
	assert.Equal(t, "accepted\ta.jpg\t00ff", Process(defaults["text"], acc))
	assert.Equal(t, "b.jpg,image,duplicate,a.jpg,3", Process(defaults["csv"], dup))
	assert.Equal(t, "a.jpg,image,accepted,,", Process(defaults["csv"], acc))
	assert.Equal(t, "- **accepted** `a.jpg` uploaded_files/a.jpg", Process(defaults["markdown"], acc))
	assert.Equal(t, "a.jpg image/jpeg", Process("%name% %mime|family%", acc))
	assert.Equal(t, "b.jpg image", Process("%name% %mime|family%", dup))
}

func TestProcessFallbackChain(t *testing.T) {
	vars := Variables{Name: "x.txt", Batch: "id-1"}
	assert.Equal(t, "x.txt", Process("%match|key|name%", vars))
	assert.Equal(t, "[]", Process("[%match%]", vars))
	assert.Equal(t, "id-1/x.txt", Process("%batch%/%name%", vars))
	assert.Equal(t, "", Process("%unknown%", vars))
	assert.Equal(t, "100% done", Process("100% done", vars))
}
