package handlers

import (
	"grove/internal/router"
	"grove/internal/services"
	"grove/internal/store"
)

// Routes builds the full binding table. Registration order matters: the
// router tries bindings first-registered-first, so keep literal segments
// ahead of placeholder routes that could shadow them.
func Routes(s *store.Store, notifier services.Notifier) []router.Binding {
	auth := NewAuthHandler(s)
	users := NewUserHandler(s, notifier)
	posts := NewPostHandler(s)
	votes := NewVoteHandler(s)
	comments := NewCommentHandler(s)
	wallet := NewWalletHandler(s)

	str := []router.ParamKind{router.String}
	num := []router.ParamKind{router.Int}

	return []router.Binding{
		// Accounts and sessions
		{Method: "POST", Path: "/register", NewBody: func() any { return new(RegisterRequest) }, Handle: auth.Register},
		{Method: "POST", Path: "/login", NewBody: func() any { return new(LoginRequest) }, Handle: auth.Login},
		{Method: "POST", Path: "/logout", Handle: auth.Logout},

		// Social graph
		{Method: "GET", Path: "/users", Handle: users.List},
		{Method: "GET", Path: "/users/{name}/followers", Params: str, Handle: users.Followers},
		{Method: "GET", Path: "/users/{name}/following", Params: str, Handle: users.Following},
		{Method: "POST", Path: "/follow/{name}", Params: str, Handle: users.Follow},
		{Method: "POST", Path: "/unfollow/{name}", Params: str, Handle: users.Unfollow},

		// Content
		{Method: "POST", Path: "/posts", NewBody: func() any { return new(CreatePostRequest) }, Handle: posts.Create},
		{Method: "GET", Path: "/posts/{id}", Params: num, Handle: posts.Show},
		{Method: "POST", Path: "/posts/{id}/rewin", Params: num, Handle: posts.Rewin},
		{Method: "POST", Path: "/posts/{id}/rate", Params: num, NewBody: func() any { return new(RateRequest) }, Handle: votes.Rate},
		{Method: "POST", Path: "/posts/{id}/comments", Params: num, NewBody: func() any { return new(CommentRequest) }, Handle: comments.Create},
		{Method: "GET", Path: "/blog", Handle: posts.Blog},
		{Method: "GET", Path: "/blog/{name}", Params: str, Handle: posts.BlogOf},
		{Method: "GET", Path: "/feed", Handle: posts.Feed},

		// Wallet
		{Method: "GET", Path: "/wallet", Handle: wallet.Show},
		{Method: "GET", Path: "/wallet/btc", Handle: wallet.ShowBTC},
	}
}
