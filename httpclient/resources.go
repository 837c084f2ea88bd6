// httpclient/resources.go
package httpclient

import (
	"fmt"
	"net/http"
)

// User is a record of GET /users.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Post is a record of GET /posts.
type Post struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Comment is a record of GET /posts/{id}/comments.
type Comment struct {
	ID     int    `json:"id"`
	PostID int    `json:"postId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Body   string `json:"body"`
}

// SecureData is the payload of the authenticated /secure-data endpoint.
type SecureData struct {
	ID      int    `json:"id"`
	Owner   string `json:"owner"`
	Payload string `json:"payload"`
}

var (
	UsersEndpoint      = Endpoint{Path: "/users", Method: http.MethodGet}
	PostsEndpoint      = Endpoint{Path: "/posts", Method: http.MethodGet}
	SecureDataEndpoint = Endpoint{Path: "/secure-data", Method: http.MethodGet, RequiresAuthentication: true}
)

// CommentsEndpoint lists the comments of one post.
func CommentsEndpoint(postID int) Endpoint {
	return Endpoint{Path: fmt.Sprintf("/posts/%d/comments", postID), Method: http.MethodGet}
}

func GetUsersRequest() APIRequest[[]User] {
	return APIRequest[[]User]{Endpoint: UsersEndpoint}
}

func GetPostsRequest() APIRequest[[]Post] {
	return APIRequest[[]Post]{Endpoint: PostsEndpoint}
}

func GetCommentsRequest(postID int) APIRequest[[]Comment] {
	return APIRequest[[]Comment]{Endpoint: CommentsEndpoint(postID)}
}

func GetSecureDataRequest() APIRequest[SecureData] {
	return APIRequest[SecureData]{Endpoint: SecureDataEndpoint}
}
