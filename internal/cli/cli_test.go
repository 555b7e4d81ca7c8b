package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/itsneelabh/cartshare"
	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/core"
	"github.com/itsneelabh/cartshare/internal/fakeapi"
)

type harness struct {
	backend *fakeapi.Server
	cli     *CLI
	stdin   *strings.Reader
	stdout  bytes.Buffer
	stderr  bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith runs the backend behind wrap, when set.
func newHarnessWith(t *testing.T, wrap func(http.Handler) http.Handler) *harness {
	t.Helper()
	backend := fakeapi.New(fakeapi.WithPasswordCost(bcrypt.MinCost))
	handler := backend.Handler()
	if wrap != nil {
		handler = wrap(handler)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	h := &harness{backend: backend, stdin: strings.NewReader("")}
	h.cli = New(
		WithIO(h.stdin, &h.stdout, &h.stderr),
		WithConfigOptions(core.WithAPIBaseURL(ts.URL), core.WithSessionProvider("memory")),
		WithAppOptions(cartshare.WithLogger(&core.NoOpLogger{})),
	)
	t.Cleanup(func() { h.cli.Close(context.Background()) })
	return h
}

// run executes one command line and returns what it printed.
func (h *harness) run(args ...string) (stdout, stderr string, code int) {
	h.stdout.Reset()
	h.stderr.Reset()
	code = h.cli.Run(context.Background(), args)
	return h.stdout.String(), h.stderr.String(), code
}

// input replaces what the next prompts read.
func (h *harness) input(s string) {
	h.stdin.Reset(s)
}

func (h *harness) seedAccount(t *testing.T, email, username string) {
	t.Helper()
	_, fault := h.backend.Store().Register(api.CreateUserRequest{
		Email: email, Username: username, Password: "secret1", PasswordConfirmation: "secret1",
	})
	require.Nil(t, fault)
}

func (h *harness) signIn(t *testing.T, email string) {
	t.Helper()
	out, errOut, code := h.run("login", "-e", email, "-p", "secret1")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Signed in as")
}

func (h *harness) createCart(t *testing.T, name string) api.ID {
	t.Helper()
	_, errOut, code := h.run("carts", "create", name)
	require.Equal(t, 0, code, errOut)
	carts, err := h.cli.app.Cart.Baskets.List(context.Background())
	require.NoError(t, err)
	for _, b := range carts {
		if b.Name == name {
			return b.ID
		}
	}
	t.Fatalf("basket %q not listed", name)
	return ""
}

func TestRouting(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"home while signed out", nil, 0, "Sign in with `cartshare login`", ""},
		{"home command", []string{"home"}, 0, "Welcome to cartshare", ""},
		{"about", []string{"about"}, 0, "Mission:", ""},
		{"contact", []string{"contact"}, 0, "support@cartify.com", ""},
		{"version", []string{"version"}, 0, "cartshare development", ""},
		{"unknown page", []string{"checkout-now"}, 1, "", "page not found: checkout-now"},
		{"profile needs an account", []string{"profile"}, 1, "", "Please sign in first"},
		{"carts need an account", []string{"carts"}, 1, "", "Please sign in first"},
		{"cart needs an account", []string{"cart", "show", "1"}, 1, "", "Please sign in first"},
		{"history needs an account", []string{"history", "recent"}, 1, "", "Please sign in first"},
		{"logout needs an account", []string{"logout"}, 1, "", "Please sign in first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, code := h.run(tt.args...)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, out, tt.wantStdout)
			assert.Contains(t, errOut, tt.wantStderr)
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)

	t.Run("validation never reaches the backend", func(t *testing.T) {
		_, errOut, code := h.run("register", "-e", "ana@example.com", "-u", "ana", "-p", "abc", "--confirm", "abc")
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "Password must be at least 6 characters")

		_, errOut, _ = h.run("register", "-e", "ana@example.com", "-u", "ana", "-p", "secret1", "--confirm", "secret2")
		assert.Contains(t, errOut, "Passwords do not match")
	})

	out, errOut, code := h.run("register", "-e", "ana@example.com", "-u", "ana", "-p", "secret1", "--confirm", "secret1")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Account created.")
	assert.Contains(t, out, "Your recovery code is ")

	t.Run("duplicate email shows the backend message", func(t *testing.T) {
		_, errOut, code := h.run("register", "-e", "ana@example.com", "-u", "other", "-p", "secret1", "--confirm", "secret1")
		assert.Equal(t, 1, code)
		assert.NotEmpty(t, strings.TrimSpace(errOut))
	})

	t.Run("missing password is prompted for", func(t *testing.T) {
		h.input("")
		out, errOut, code := h.run("login", "-e", "ana@example.com")
		assert.Equal(t, 1, code)
		assert.Contains(t, out, "Password: ")
		assert.Contains(t, errOut, "Password is required")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, errOut, code := h.run("login", "-e", "ana@example.com", "-p", "nope-nope")
		assert.Equal(t, 1, code)
		assert.NotEmpty(t, strings.TrimSpace(errOut))
	})

	h.input("secret1\n")
	out, errOut, code = h.run("login", "-e", "ana@example.com")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Signed in as ana.")

	t.Run("guest pages only say so", func(t *testing.T) {
		for _, page := range []string{"login", "register", "forgot-password"} {
			out, _, code := h.run(page)
			assert.Equal(t, 0, code)
			assert.Contains(t, out, "already signed in as ana")
		}
	})
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "ana@example.com", "ana")
	h.signIn(t, "ana@example.com")

	out, _, code := h.run("profile")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Username: ana")
	assert.Contains(t, out, "Email:    ana@example.com")

	_, errOut, code := h.run("profile", "change-username", "an", "-p", "secret1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Username must be at least 3 characters")

	out, errOut, code = h.run("profile", "change-username", "anna", "-p", "secret1")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Username changed to anna.")

	_, errOut, code = h.run("profile", "change-password", "--old", "secret1", "--new", "secret2", "--confirm", "secret3")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Passwords do not match")

	out, errOut, code = h.run("profile", "change-password", "--old", "secret1", "--new", "secret2", "--confirm", "secret2")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Password changed.")

	out, _, code = h.run("logout")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Signed out.")

	out, errOut, code = h.run("login", "-e", "ana@example.com", "-p", "secret2")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Signed in as anna.")
}

func TestForgotPassword(t *testing.T) {
	h := newHarness(t)
	out, errOut, code := h.run("register", "-e", "bo@example.com", "-u", "bo", "-p", "secret1", "--confirm", "secret1")
	require.Equal(t, 0, code, errOut)
	var recovery string
	for _, line := range strings.Split(out, "\n") {
		if code, ok := strings.CutPrefix(line, "Your recovery code is "); ok {
			recovery = code
		}
	}
	require.NotEmpty(t, recovery)

	_, errOut, code = h.run("forgot-password", "-c", "  ")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Please enter a valid recovery code")

	_, errOut, code = h.run("forgot-password", "-c", "WRONG", "-p", "secret9", "--confirm", "secret9")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Could not reset the password")

	out, errOut, code = h.run("forgot-password", "-c", recovery, "-p", "secret9", "--confirm", "secret9")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Password updated.")

	h.signInWith(t, "bo@example.com", "secret9")
}

func (h *harness) signInWith(t *testing.T, email, password string) {
	t.Helper()
	_, errOut, code := h.run("login", "-e", email, "-p", password)
	require.Equal(t, 0, code, errOut)
}

func TestCartCommands(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "ana@example.com", "ana")
	h.signIn(t, "ana@example.com")

	out, _, code := h.run("carts")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "You have no baskets yet")

	cartID := h.createCart(t, "Weekly")
	id := cartID.String()

	out, _, code = h.run("cart", id)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "The basket is empty")

	// Lidl milk twice and Kaufland bread: both have cheaper offers.
	out, errOut, code := h.run("cart", "add", id, "10:2", "21")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Added 2 product(s).")
	assert.Contains(t, out, "Total: 6.33")

	out, _, code = h.run("cart", "suggestions", id)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Potential savings: 0.85")

	_, errOut, code = h.run("cart", "apply", id)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Name a product or pass --all.")

	out, errOut, code = h.run("cart", "apply", id, "--all")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, 2, strings.Count(out, "Swapped"))
	assert.Contains(t, out, "Total: 5.48")

	out, _, code = h.run("cart", "suggestions", id)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No cheaper offers")

	out, errOut, code = h.run("cart", "qty", id, "11", "+1")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Items: 4")

	_, errOut, code = h.run("cart", "qty", id, "11", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Quantity must be at least 1")

	_, errOut, code = h.run("cart", "qty", id, "99", "+1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Product 99 is not in the basket.")

	out, errOut, code = h.run("cart", "toggle", id, "22")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "[x]")

	out, errOut, code = h.run("cart", "rm", id, "22")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Removed.")

	out, errOut, code = h.run("products", "offers", "1", "--cart", id)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "in basket")

	h.input("n\n")
	out, _, code = h.run("cart", "checkout", id)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Checkout canceled.")

	h.input("y\n")
	out, errOut, code = h.run("cart", "checkout", id)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Checkout completed")

	_, errOut, code = h.run("cart", "checkout", id, "--yes")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "nothing to check out")

	out, _, code = h.run("history", "recent")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Weekly")

	out, _, code = h.run("history")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "3 x Whole Milk 1L")

	out, _, code = h.run()
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Hello, ana.")
	assert.Contains(t, out, "Weekly")
}

// emptyLineReplies forwards line mutations but answers them with an empty
// 200 body, which the api layer decodes to a nil basket.
func emptyLineReplies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}
		rec := httptest.NewRecorder()
		next.ServeHTTP(rec, r)
		w.WriteHeader(rec.Code)
	})
}

func TestCartCommands_EmptyMutationReply(t *testing.T) {
	h := newHarnessWith(t, emptyLineReplies)
	h.seedAccount(t, "ana@example.com", "ana")
	h.signIn(t, "ana@example.com")
	id := h.createCart(t, "Weekly").String()

	_, errOut, code := h.run("cart", "add", id, "10:2", "21")
	require.Equal(t, 0, code, errOut)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"set quantity", []string{"cart", "qty", id, "10", "3"}, []string{"Weekly (#" + id + ")", "Items: 4"}},
		{"adjust quantity", []string{"cart", "qty", id, "10", "-1"}, []string{"Items: 3"}},
		{"toggle", []string{"cart", "toggle", id, "21"}, []string{"[x]"}},
		{"remove", []string{"cart", "rm", id, "21"}, []string{"Removed.", "Items: 2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, code := h.run(tt.args...)
			require.Equal(t, 0, code, errOut)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestSharing(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "ana@example.com", "ana")
	h.seedAccount(t, "bo@example.com", "bo")
	h.signIn(t, "ana@example.com")
	cartID := h.createCart(t, "Party")

	carts, err := h.cli.app.Cart.Baskets.List(context.Background())
	require.NoError(t, err)
	code := carts[0].ShareCode
	require.NotEmpty(t, code)

	_, _, exit := h.run("logout")
	require.Equal(t, 0, exit)
	h.signIn(t, "bo@example.com")

	out, errOut, exit := h.run("carts", "join", code)
	require.Equal(t, 0, exit, errOut)
	assert.NotEmpty(t, strings.TrimSpace(out))

	out, _, exit = h.run("carts")
	require.Equal(t, 0, exit)
	assert.Contains(t, out, "Party")
	assert.Contains(t, out, "ana, bo")

	out, errOut, exit = h.run("cart", "add", cartID.String(), "30")
	require.Equal(t, 0, exit, errOut)
	assert.Contains(t, out, "Members: ana, bo")
}

func TestForcedLogout(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "ana@example.com", "ana")
	h.signIn(t, "ana@example.com")

	h.backend.Store().ExpireSessions()

	_, errOut, code := h.run("carts")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Your session has ended")

	_, errOut, code = h.run("carts")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Please sign in first")
}

func TestShell(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "ana@example.com", "ana")

	h.input(strings.Join([]string{
		"login -e ana@example.com -p secret1",
		`carts create "Party time"`,
		"",
		"shell",
		"nope",
		"carts",
		"exit",
		"about",
	}, "\n") + "\n")

	out, errOut, code := h.run("shell", "--metrics-addr", "127.0.0.1:0")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Metrics on http://127.0.0.1:")
	assert.Contains(t, out, "cartshare> ")
	assert.Contains(t, out, "ana@cartshare> ")
	assert.Contains(t, out, "Party time")
	assert.Contains(t, out, "Already in the shell.")
	assert.NotContains(t, out, "Mission:", "nothing runs after exit")
	assert.Contains(t, errOut, "page not found: nope")
	require.NotNil(t, h.cli.app.Metrics)
}

func TestShell_EndsAtEOF(t *testing.T) {
	h := newHarness(t)
	h.input("about")

	out, _, code := h.run("shell")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Mission:")
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"   \n", nil, false},
		{"carts list\n", []string{"carts", "list"}, false},
		{`carts create "Party time"`, []string{"carts", "create", "Party time"}, false},
		{`carts create 'Mum''s list'`, []string{"carts", "create", "Mums list"}, false},
		{`login -p ""`, []string{"login", "-p", ""}, false},
		{"cart\tadd  12 10:2", []string{"cart", "add", "12", "10:2"}, false},
		{`carts create "open`, nil, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.line), func(t *testing.T) {
			got, err := splitArgs(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		arg     string
		id      api.ID
		qty     int
		wantErr bool
	}{
		{"10", "10", 1, false},
		{"10:3", "10", 3, false},
		{"10:-1", "10", -1, false},
		{":2", "", 0, true},
		{"10:x", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			id, qty, err := parseLine(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.qty, qty)
		})
	}
}
