package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPartitioner(mode SourceMatchMode) Partitioner {
	return Partitioner{
		ProductSourceID:        "产品总图.pdf",
		ProductSourceMatch:     mode,
		SubAssemblyMarker:      "组件",
		ComponentSourcePattern: "组件图%d.pdf",
	}
}

func sampleBOM() []BOMRecord {
	return []BOMRecord{
		{Code: "01.09.2549", Name: "后座组件", SourceScope: "产品总图.pdf"},
		{Code: "02.03.0088", Name: "六角螺栓", SourceScope: "产品总图.pdf"},
		{Code: "02.03.0090", Name: "垫圈", SourceScope: "产品总图-续.pdf"},
		{Code: "03.01.0001", Name: "支架", SourceScope: "组件图1.pdf"},
		{Code: "03.01.0002", Name: "底板", SourceScope: "组件图2.pdf"},
	}
}

func TestPartitioner_ExcludesSubAssembliesFromProduct(t *testing.T) {
	p := testPartitioner(SourceMatchExact)
	product := p.Product(sampleBOM())

	assert.Len(t, product, 1)
	assert.Equal(t, "02.03.0088", product[0].Code)
	assert.Equal(t, 1, p.Excluded(sampleBOM()))
}

func TestPartitioner_PrefixMode(t *testing.T) {
	p := testPartitioner(SourceMatchPrefix)
	product := p.Product(sampleBOM())

	codes := []string{}
	for _, r := range product {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []string{"02.03.0088", "02.03.0090"}, codes)
}

func TestPartitioner_Component(t *testing.T) {
	p := testPartitioner(SourceMatchExact)
	id := p.ComponentSourceID(1)
	assert.Equal(t, "组件图1.pdf", id)

	comp := p.Component(sampleBOM(), id)
	assert.Len(t, comp, 1)
	assert.Equal(t, "03.01.0001", comp[0].Code)
	assert.Empty(t, p.Component(sampleBOM(), "组件图9.pdf"))
}

func TestPartitioner_EmptyMarkerKeepsAll(t *testing.T) {
	p := testPartitioner(SourceMatchExact)
	p.SubAssemblyMarker = ""
	assert.Len(t, p.Product(sampleBOM()), 2)
	assert.Zero(t, p.Excluded(sampleBOM()))
}
