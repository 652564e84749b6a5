package expression

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldcore/pkg/domain"
)

func primitive(name string) domain.Solid {
	r := 1.0
	return domain.Solid{Name: name, Kind: domain.SolidSPH, Shape: domain.Shape{Center: "0 0 0", Radius: &r}}
}

func cmb(name, expr string) domain.Solid {
	return domain.Solid{Name: name, Kind: domain.SolidCMB, Expression: expr}
}

func codeOf(t *testing.T, err error) domain.Code {
	t.Helper()
	require.Error(t, err)
	e, ok := domain.AsError(err)
	require.True(t, ok, "expected *domain.Error, got %T", err)
	return e.Code
}

func TestValidateAcceptsWellFormedExpressions(t *testing.T) {
	bodies := IndexBodies([]domain.Solid{primitive("A"), primitive("B"), primitive("C_1")})
	for _, expr := range []string{"A", "A + B", "A-B", "(A & B) - C_1", "((A))", " A  +  ( B - C_1 ) "} {
		t.Run(expr, func(t *testing.T) {
			require.NoError(t, Validate("new", expr, bodies))
			require.NoError(t, Validate("new", expr, bodies), "second pass must agree")
		})
	}
}

func TestCheckSyntaxRejections(t *testing.T) {
	cases := []struct {
		expr string
		code domain.Code
	}{
		{"   ", domain.CodeExpressionEmpty},
		{"A * B", domain.CodeExpressionCharacter},
		{"A / B", domain.CodeExpressionCharacter},
		{"A ^ B", domain.CodeExpressionCharacter},
		{"A | B", domain.CodeExpressionCharacter},
		{"A + B!", domain.CodeExpressionCharacter},
		{"(A + B", domain.CodeExpressionParentheses},
		{"A + B)", domain.CodeExpressionParentheses},
		{")A(", domain.CodeExpressionParentheses},
		{"+ A B", domain.CodeExpressionSyntax},
		{"A B +", domain.CodeExpressionSyntax},
		{"A + + B", domain.CodeExpressionSyntax},
		{"A B", domain.CodeExpressionSyntax},
		{"(+ A)", domain.CodeExpressionSyntax},
		{"(A -)", domain.CodeExpressionSyntax},
		{"A (B)", domain.CodeExpressionSyntax},
		{"(A) B", domain.CodeExpressionSyntax},
		{"A + ()", domain.CodeExpressionSyntax},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := CheckSyntax(tc.expr)
			assert.Equal(t, tc.code, codeOf(t, err))
		})
	}
}

func TestValidateListsAllMissingBodies(t *testing.T) {
	err := Validate("new", "A + ghost - phantom", IndexBodies([]domain.Solid{primitive("A")}))
	require.Equal(t, domain.CodeMissingSolid, codeOf(t, err))
	e, _ := domain.AsError(err)
	assert.Equal(t, []string{"ghost", "phantom"}, e.Value)
}

func TestValidateDetectsCycles(t *testing.T) {
	// X references self through Y.
	bodies := IndexBodies([]domain.Solid{primitive("A"), cmb("Y", "A + X")})
	err := Validate("X", "Y - A", bodies)
	assert.Equal(t, domain.CodeExpressionCycle, codeOf(t, err))

	err = Validate("X", "X + A", bodies)
	assert.Equal(t, domain.CodeExpressionCycle, codeOf(t, err))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestValidateBoundsDepth(t *testing.T) {
	list := []domain.Solid{primitive("leaf")}
	prev := "leaf"
	for i := 0; i < MaxDepth+2; i++ {
		name := fmt.Sprintf("c%d", i)
		list = append(list, cmb(name, prev+" + leaf"))
		prev = name
	}
	err := Validate("top", prev, IndexBodies(list))
	assert.Equal(t, domain.CodeExpressionDepth, codeOf(t, err))

	err = Validate("top", "c3", IndexBodies(list))
	assert.NoError(t, err)
}

func TestSiblingBranchesDoNotShareStack(t *testing.T) {
	bodies := IndexBodies([]domain.Solid{primitive("A"), cmb("L", "A"), cmb("R", "A")})
	require.NoError(t, Validate("top", "L + R", bodies))
}

func TestOperandsAndReferences(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, Operands("(A + B) - A & C"))
	assert.True(t, References("A - B", "B"))
	assert.False(t, References("AB - C", "B"))
}
