package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goblog/apiserver/internal/mail"
	"github.com/goblog/apiserver/internal/services"
	"github.com/goblog/apiserver/internal/store"
	"github.com/goblog/apiserver/internal/token"
	"github.com/goblog/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fakes below mirror the store repositories in memory so the full
// router can be exercised without postgres.

type memUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: map[int]types.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Activate(ctx context.Context, code string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code == "" {
		return types.User{}, store.ErrNotFound
	}
	for id, user := range r.users {
		if user.ActivationCode == code {
			user.ActivationCode = ""
			user.IsActive = true
			r.users[id] = user
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) codeFor(email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user.ActivationCode
		}
	}
	return ""
}

type memPostRepo struct {
	mu     sync.Mutex
	nextID int
	posts  map[int]types.Post
}

func newMemPostRepo() *memPostRepo {
	return &memPostRepo{nextID: 1, posts: map[int]types.Post{}}
}

func (r *memPostRepo) List(ctx context.Context) ([]types.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	posts := make([]types.Post, 0, len(r.posts))
	for _, post := range r.posts {
		posts = append(posts, post)
	}
	return posts, nil
}

func (r *memPostRepo) GetBySlug(ctx context.Context, slug string) (types.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, post := range r.posts {
		if post.Slug == slug {
			return post, nil
		}
	}
	return types.Post{}, store.ErrNotFound
}

func (r *memPostRepo) Create(ctx context.Context, post types.Post, tagSlugs []string) (types.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.posts {
		if existing.Title == post.Title {
			return types.Post{}, store.ErrDuplicate
		}
	}
	post.ID = r.nextID
	post.CreatedAt = time.Now()
	r.nextID++
	r.posts[post.ID] = post
	return post, nil
}

func (r *memPostRepo) Update(ctx context.Context, post types.Post, tagSlugs []string) (types.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.posts[post.ID]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	existing.Title = post.Title
	existing.Text = post.Text
	existing.Category = post.Category
	r.posts[post.ID] = existing
	return existing, nil
}

func (r *memPostRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.posts, id)
	return nil
}

func (r *memPostRepo) SetCoverKey(ctx context.Context, id int, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	post.CoverKey = key
	r.posts[id] = post
	return nil
}

type memCategoryRepo struct {
	mu         sync.Mutex
	categories map[string]types.Category
}

func newMemCategoryRepo() *memCategoryRepo {
	return &memCategoryRepo{categories: map[string]types.Category{}}
}

func (r *memCategoryRepo) List(ctx context.Context) ([]types.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	categories := make([]types.Category, 0, len(r.categories))
	for _, category := range r.categories {
		categories = append(categories, category)
	}
	return categories, nil
}

func (r *memCategoryRepo) Get(ctx context.Context, slug string) (types.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	category, ok := r.categories[slug]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	return category, nil
}

func (r *memCategoryRepo) Create(ctx context.Context, category types.Category) (types.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[category.Slug]; ok {
		return types.Category{}, store.ErrDuplicate
	}
	r.categories[category.Slug] = category
	return category, nil
}

func (r *memCategoryRepo) Delete(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[slug]; !ok {
		return store.ErrNotFound
	}
	delete(r.categories, slug)
	return nil
}

type memTagRepo struct {
	mu   sync.Mutex
	tags map[string]types.Tag
}

func newMemTagRepo() *memTagRepo {
	return &memTagRepo{tags: map[string]types.Tag{}}
}

func (r *memTagRepo) List(ctx context.Context) ([]types.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags := make([]types.Tag, 0, len(r.tags))
	for _, tag := range r.tags {
		tags = append(tags, tag)
	}
	return tags, nil
}

func (r *memTagRepo) Create(ctx context.Context, tag types.Tag) (types.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tags[tag.Slug]; ok {
		return types.Tag{}, store.ErrDuplicate
	}
	r.tags[tag.Slug] = tag
	return tag, nil
}

func (r *memTagRepo) Delete(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tags[slug]; !ok {
		return store.ErrNotFound
	}
	delete(r.tags, slug)
	return nil
}

type chanMailer struct {
	sent chan mail.Message
}

func newChanMailer() *chanMailer {
	return &chanMailer{sent: make(chan mail.Message, 8)}
}

func (m *chanMailer) Send(ctx context.Context, msg mail.Message) error {
	m.sent <- msg
	return nil
}

type testEnv struct {
	router *chi.Mux
	users  *memUserRepo
	posts  *memPostRepo
	mailer *chanMailer
}

// newTestEnv wires the router exactly the way the server does, with
// in-memory repositories instead of postgres.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newMemUserRepo()
	posts := newMemPostRepo()
	mailer := newChanMailer()

	userService := services.NewUserService(
		users,
		mailer,
		token.NewIssuer("access-secret", "HS256", 30),
		token.NewIssuer("refresh-secret", "HS256", 60),
		token.NewVerifier("refresh-secret"),
		"http://localhost:8080",
		zerolog.Nop(),
	)
	postService := services.NewPostService(posts, nil)
	categoryService := services.NewCategoryService(newMemCategoryRepo())
	tagService := services.NewTagService(newMemTagRepo())

	authHandler := NewAuthHandler(userService, token.NewVerifier("access-secret"))

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Group(func(r chi.Router) {
		AuthRouter(r, authHandler)
	})
	router.Route("/posts", func(r chi.Router) {
		PostRouter(r, postService, authHandler.RequireAuth)
	})
	router.Route("/categories", func(r chi.Router) {
		CategoryRouter(r, categoryService, authHandler.RequireAuth)
	})
	router.Route("/tags", func(r chi.Router) {
		TagRouter(r, tagService, authHandler.RequireAuth)
	})

	return &testEnv{router: router, users: users, posts: posts, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

func (e *testEnv) waitMail(t *testing.T) mail.Message {
	t.Helper()
	select {
	case msg := <-e.mailer.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail dispatch")
		return mail.Message{}
	}
}

// registerAndLogin drives an account through the whole lifecycle and
// returns its access token and user id.
func (e *testEnv) registerAndLogin(t *testing.T, email, password string) (string, int) {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/register/", "", map[string]string{
		"email":    email,
		"name":     "Test User",
		"password": password,
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	e.waitMail(t)

	var created types.User
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	code := e.users.codeFor(email)
	require.NotEmpty(t, code)

	resp = e.do(t, http.MethodGet, fmt.Sprintf("/activate/%s/", code), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = e.do(t, http.MethodPost, "/login/", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var pair services.TokenPair
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &pair))
	require.NotEmpty(t, pair.AccessToken)
	return pair.AccessToken, created.ID
}

func TestAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/register/", "", map[string]string{
		"email":    "alice@example.com",
		"name":     "Alice",
		"password": "pw123",
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	// The response never leaks the hash or the code.
	assert.NotContains(t, resp.Body.String(), "password")
	assert.NotContains(t, resp.Body.String(), "activation_code")

	msg := env.waitMail(t)
	assert.Equal(t, "alice@example.com", msg.To)

	// Same email again is refused.
	resp = env.do(t, http.MethodPost, "/register/", "", map[string]string{
		"email":    "alice@example.com",
		"name":     "Alice",
		"password": "pw123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// Login before activation is refused even with correct credentials.
	resp = env.do(t, http.MethodPost, "/login/", "", map[string]string{
		"email":    "alice@example.com",
		"password": "pw123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	code := env.users.codeFor("alice@example.com")
	resp = env.do(t, http.MethodGet, "/activate/"+code+"/", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	// The code is single-use; the second redeem looks like an unknown code.
	resp = env.do(t, http.MethodGet, "/activate/"+code+"/", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(t, http.MethodPost, "/login/", "", map[string]string{
		"email":    "alice@example.com",
		"password": "pw123",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var pair services.TokenPair
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	resp = env.do(t, http.MethodPost, "/login/", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(t, http.MethodGet, "/me/", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var me types.User
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me.Email)
	assert.True(t, me.IsActive)
}

func TestActivateUnknownCode(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/activate/NOPE1234/", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "alice@example.com", "pw123")

	resp := env.do(t, http.MethodPost, "/login/", "", map[string]string{
		"email":    "alice@example.com",
		"password": "pw123",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	var pair services.TokenPair
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &pair))

	resp = env.do(t, http.MethodPost, "/refresh/", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.do(t, http.MethodPost, "/refresh/", "", map[string]string{
		"refresh_token": pair.AccessToken,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPostCRUDAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, aliceID := env.registerAndLogin(t, "alice@example.com", "pw123")
	bobToken, _ := env.registerAndLogin(t, "bob@example.com", "pw456")

	// Unauthenticated create is refused.
	resp := env.do(t, http.MethodPost, "/posts/", "", map[string]any{
		"title": "Hello", "text": "body", "category_id": "news",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.do(t, http.MethodPost, "/posts/", aliceToken, map[string]any{
		"title": "Hello", "text": "body", "category_id": "news",
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var post types.Post
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &post))
	assert.Equal(t, "hello", post.Slug)
	assert.Equal(t, aliceID, post.AuthorID)

	// Duplicate title is refused.
	resp = env.do(t, http.MethodPost, "/posts/", bobToken, map[string]any{
		"title": "Hello", "text": "other", "category_id": "news",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(t, http.MethodGet, "/posts/hello/", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.do(t, http.MethodGet, "/posts/missing/", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// Only the author may update.
	resp = env.do(t, http.MethodPatch, "/posts/hello/", bobToken, map[string]any{"text": "hacked"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodPatch, "/posts/hello/", aliceToken, map[string]any{"text": "edited"})
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &post))
	assert.Equal(t, "edited", post.Text)

	// Only the author may delete.
	resp = env.do(t, http.MethodDelete, "/posts/hello/", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodDelete, "/posts/hello/", aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = env.do(t, http.MethodGet, "/posts/hello/", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListEndpointsArePublic(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.registerAndLogin(t, "alice@example.com", "pw123")

	resp := env.do(t, http.MethodPost, "/categories/", token, map[string]string{"title": "News", "slug": "news"})
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = env.do(t, http.MethodPost, "/tags/", token, map[string]string{"title": "Go"})
	require.Equal(t, http.StatusCreated, resp.Code)
	var tag types.Tag
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &tag))
	assert.Equal(t, "go", tag.Slug)

	resp = env.do(t, http.MethodGet, "/categories/", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "news")

	resp = env.do(t, http.MethodGet, "/tags/", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "go")

	resp = env.do(t, http.MethodGet, "/posts/", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestBadBearerTokens(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/me/", "garbage", nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	// Token signed with the wrong secret.
	wrong, err := token.NewIssuer("other-secret", "HS256", 30).Issue("1")
	require.NoError(t, err)
	resp = env.do(t, http.MethodGet, "/me/", wrong, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	// Valid token whose subject no longer resolves to a user.
	orphan, err := token.NewIssuer("access-secret", "HS256", 30).Issue("999")
	require.NoError(t, err)
	resp = env.do(t, http.MethodGet, "/me/", orphan, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/me/", nil)
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
