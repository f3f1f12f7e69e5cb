package wildcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	t.Run("literal pattern has no wildcards", func(t *testing.T) {
		p, err := Compile("data/samples.txt")
		require.NoError(t, err)
		assert.False(t, p.HasWildcards())
		assert.Empty(t, p.Names())
	})

	t.Run("names collected in order of first appearance", func(t *testing.T) {
		p, err := Compile("{dir}/{sample}_{dir}.bam")
		require.NoError(t, err)
		assert.Equal(t, []string{"dir", "sample"}, p.Names())
	})

	t.Run("unclosed brace", func(t *testing.T) {
		_, err := Compile("trimmed/{sample.fq")
		assert.ErrorContains(t, err, "unclosed")
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := Compile("trimmed/{my sample}.fq")
		assert.ErrorContains(t, err, "invalid wildcard name")
	})

	t.Run("bad constraint regexp", func(t *testing.T) {
		_, err := Compile("trimmed/{sample,[}.fq")
		assert.ErrorContains(t, err, "bad wildcard constraint")
	})
}

func TestMatch(t *testing.T) {
	t.Run("simple binding", func(t *testing.T) {
		p := MustCompile("trimmed/{sample}.fq")
		b, ok, err := p.Match("trimmed/wt_a.fq")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Binding{"sample": "wt_a"}, b)
	})

	t.Run("multiple wildcards", func(t *testing.T) {
		p := MustCompile("aligned/{sample}_{lane}.bam")
		b, ok, err := p.Match("aligned/wt_L001.bam")
		require.NoError(t, err)
		require.True(t, ok)
		// Non-greedy placeholders take the shortest consistent split.
		assert.Equal(t, Binding{"sample": "wt", "lane": "L001"}, b)
	})

	t.Run("no match is not an error", func(t *testing.T) {
		p := MustCompile("trimmed/{sample}.fq")
		_, ok, err := p.Match("aligned/wt_a.bam")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wildcard does not cross path separators", func(t *testing.T) {
		p := MustCompile("trimmed/{sample}.fq")
		_, ok, err := p.Match("trimmed/run1/wt_a.fq")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("constraint may allow separators", func(t *testing.T) {
		p := MustCompile("results/{path,.+}.txt")
		b, ok, err := p.Match("results/a/b/c.txt")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a/b/c", b["path"])
	})

	t.Run("constraint restricts the match", func(t *testing.T) {
		p := MustCompile("lane/{n,\\d+}.fq")
		_, ok, err := p.Match("lane/abc.fq")
		require.NoError(t, err)
		assert.False(t, ok)

		b, ok, err := p.Match("lane/042.fq")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "042", b["n"])
	})

	t.Run("repeated name must bind identically", func(t *testing.T) {
		p := MustCompile("{s}/{s}.fq")
		b, ok, err := p.Match("wt/wt.fq")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Binding{"s": "wt"}, b)

		_, _, err = p.Match("wt/mut.fq")
		var inconsistent *InconsistentWildcardError
		require.ErrorAs(t, err, &inconsistent)
		assert.Equal(t, "s", inconsistent.Name)
	})

	t.Run("literal pattern matches only itself", func(t *testing.T) {
		p := MustCompile("config.yaml")
		b, ok, err := p.Match("config.yaml")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Empty(t, b)

		_, ok, _ = p.Match("other.yaml")
		assert.False(t, ok)
	})
}

func TestExpand(t *testing.T) {
	t.Run("substitutes bound values", func(t *testing.T) {
		p := MustCompile("trimmed/{sample}_{read}.fq")
		got, err := p.Expand(Binding{"sample": "wt_a", "read": "1"})
		require.NoError(t, err)
		assert.Equal(t, "trimmed/wt_a_1.fq", got)
	})

	t.Run("unbound wildcard fails", func(t *testing.T) {
		p := MustCompile("trimmed/{sample}.fq")
		_, err := p.Expand(Binding{})
		var unbound *UnboundWildcardError
		require.ErrorAs(t, err, &unbound)
		assert.Equal(t, "sample", unbound.Name)
	})

	t.Run("round trip", func(t *testing.T) {
		p := MustCompile("calls/{region}/{sample}.vcf")
		b, ok, err := p.Match("calls/chr1/wt_a.vcf")
		require.NoError(t, err)
		require.True(t, ok)
		got, err := p.Expand(b)
		require.NoError(t, err)
		assert.Equal(t, "calls/chr1/wt_a.vcf", got)
	})
}
