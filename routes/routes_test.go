package routes_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-guard/flags"
	"github.com/jrsteele09/go-auth-guard/routes"
	"github.com/stretchr/testify/require"
)

func TestToRegexp_LiteralIsExact(t *testing.T) {
	literals := []string{"/", "/login", "/a.b", "/docs/(v1)", "/price$", "/x+y?z", `/back\slash`, "/[brackets]", "/{braces}|pipe^"}

	for _, lit := range literals {
		t.Run(lit, func(t *testing.T) {
			re, err := routes.ToRegexp(routes.Literal(lit))
			require.NoError(t, err)

			require.True(t, re.MatchString(lit), "exact string must match")
			require.False(t, re.MatchString(lit+"x"), "proper superstring must not match")
			require.False(t, re.MatchString("x"+lit), "proper superstring must not match")
			if len(lit) > 1 {
				require.False(t, re.MatchString(lit[:len(lit)-1]), "proper substring must not match")
				require.False(t, re.MatchString(lit[1:]), "proper substring must not match")
			}
		})
	}
}

func TestToRegexp_WildcardAcceptsAnySubstitution(t *testing.T) {
	patterns := []string{"/beta*", "*", "/a/*/c", "/files/*.json", "*/end", "/x*y*z"}
	substitutions := []string{"", "a", "/nested/path", "with.dots", "(paren)", "*", "é", "\n", "a\r\nb"}

	for _, pattern := range patterns {
		re, err := routes.ToRegexp(routes.Literal(pattern))
		require.NoError(t, err)
		for _, sub := range substitutions {
			candidate := strings.ReplaceAll(pattern, "*", sub)
			require.True(t, re.MatchString(candidate), "pattern %q should accept %q", pattern, candidate)
		}
	}
}

func TestToRegexp_WildcardIsAnchored(t *testing.T) {
	re, err := routes.ToRegexp(routes.Literal("/beta*"))
	require.NoError(t, err)

	require.True(t, re.MatchString("/beta/page"))
	require.True(t, re.MatchString("/betamax"))
	require.False(t, re.MatchString("/alpha/beta"))
}

func TestToRegexp_RegexUsedAsIs(t *testing.T) {
	re := regexp.MustCompile(`^/docs($|/)`)
	got, err := routes.ToRegexp(routes.Regex(re))
	require.NoError(t, err)
	require.Same(t, re, got)

	unanchored, err := routes.ToRegexp(routes.MustRegex(`admin`))
	require.NoError(t, err)
	require.True(t, unanchored.MatchString("/settings/admin/users"))
}

func TestFindMatchingRule_FirstMatchWins(t *testing.T) {
	cfg := routes.GuardConfig{
		Rules: []routes.Rule{
			{Match: routes.Literal("/beta*"), Public: true},
			{Match: routes.Literal("/beta/page"), Public: false, FeatureFlag: flags.Flag("x")},
		},
		DefaultAccess: routes.AccessProtected,
	}

	rule, ok := routes.FindMatchingRule("/beta/page", cfg)
	require.True(t, ok)
	require.True(t, rule.Public)
	require.Nil(t, rule.FeatureFlag)

	m, err := routes.Compile(cfg)
	require.NoError(t, err)
	compiled, ok := m.Find("/beta/page")
	require.True(t, ok)
	require.True(t, compiled.Public)
}

func TestFindMatchingRule_WildcardSpansNewline(t *testing.T) {
	cfg := routes.GuardConfig{
		Rules:         []routes.Rule{{Match: routes.Literal("/beta*"), FeatureFlag: flags.Flag("beta"), RedirectTo: "/upgrade"}},
		DefaultAccess: routes.AccessProtected,
	}

	rule, ok := routes.FindMatchingRule("/beta\nfeature", cfg)
	require.True(t, ok)
	require.Equal(t, "/upgrade", rule.RedirectTo)
}

func TestFindMatchingRule_NoMatch(t *testing.T) {
	cfg := routes.GuardConfig{Rules: []routes.Rule{{Match: routes.Literal("/login"), Public: true}}}

	rule, ok := routes.FindMatchingRule("/dashboard", cfg)
	require.False(t, ok)
	require.Nil(t, rule)
}

func TestMatcher_IsPublic(t *testing.T) {
	t.Run("rule decides", func(t *testing.T) {
		m, err := routes.Compile(routes.GuardConfig{
			Rules:         []routes.Rule{{Match: routes.Literal("/login"), Public: true}},
			DefaultAccess: routes.AccessProtected,
		})
		require.NoError(t, err)
		require.True(t, m.IsPublic("/login"))
		require.False(t, m.IsPublic("/dashboard"))
	})

	t.Run("public default", func(t *testing.T) {
		m, err := routes.Compile(routes.GuardConfig{
			Rules:         []routes.Rule{{Match: routes.Literal("/admin*")}},
			DefaultAccess: routes.AccessPublic,
		})
		require.NoError(t, err)
		require.True(t, m.IsPublic("/about"))
		require.False(t, m.IsPublic("/admin/users"))
	})

	t.Run("unset default is protected", func(t *testing.T) {
		m, err := routes.Compile(routes.GuardConfig{})
		require.NoError(t, err)
		require.Equal(t, routes.AccessProtected, m.DefaultAccess())
		require.False(t, m.IsPublic("/anything"))
	})
}

func TestCompile_RejectsUnknownDefaultAccess(t *testing.T) {
	_, err := routes.Compile(routes.GuardConfig{DefaultAccess: "sometimes"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "defaultAccess")
}

func TestRule_RedirectTarget(t *testing.T) {
	require.Equal(t, "/", routes.Rule{}.RedirectTarget())
	require.Equal(t, "/upgrade", routes.Rule{RedirectTo: "/upgrade"}.RedirectTarget())
}

func TestPattern_String(t *testing.T) {
	require.Equal(t, "/beta*", routes.Literal("/beta*").String())
	require.Equal(t, "/^/docs$/", routes.MustRegex(`^/docs$`).String())
	require.False(t, routes.Literal("/x").IsRegex())
	require.True(t, routes.MustRegex("x").IsRegex())
}
