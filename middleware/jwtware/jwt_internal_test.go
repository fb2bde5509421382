package jwtware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestGetExtractorsSkipsUnknownParts(t *testing.T) {
	extractors := GetExtractors("header:Authorization, cookie:jwt, bogus, param:id", "Bearer")
	require.Len(t, extractors, 2)
}

func TestJWTFromHeaderRequiresScheme(t *testing.T) {
	app := fiber.New()
	extract := jwtFromHeader(fiber.HeaderAuthorization, "Bearer")

	var got string
	var gotErr error
	app.Get("/", func(c *fiber.Ctx) error {
		got, gotErr = extract(c)
		return nil
	})

	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearerabc":   "",
		"Bearer ":     "",
		"":            "",
	}

	for header, want := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			req.Header.Set(fiber.HeaderAuthorization, header)
		}
		_, err := app.Test(req, -1)
		require.NoError(t, err)

		require.Equal(t, want, got, "header %q", header)
		if want == "" {
			require.ErrorIs(t, gotErr, ErrJWTMissingOrMalformed, "header %q", header)
		} else {
			require.NoError(t, gotErr)
		}
	}
}
