// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/holomush/usermgmt/internal/auth"
)

func register(email, username, password string) *http.Response {
	body, err := json.Marshal(map[string]string{"email": email, "username": username, "password": password})
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.Post(env.api.URL+"/auth/register", "application/json", bytes.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func postForm(client *http.Client, path, username, password string) *http.Response {
	resp, err := client.PostForm(env.api.URL+path, url.Values{"username": {username}, "password": {password}})
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func getWithBearer(path, token string) *http.Response {
	return sendWithBearer(http.MethodGet, path, token, nil)
}

func sendWithBearer(method, path, token string, body any) *http.Response {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, env.api.URL+path, payload)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decode(resp *http.Response) map[string]any {
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return out
}

var _ = Describe("Registration and login", func() {
	BeforeEach(func() {
		truncateUsers()
	})

	It("registers, issues a token and resolves the current user", func() {
		resp := register("alice@example.com", "alice", "correct horse")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		created := decode(resp)
		Expect(created["email"]).To(Equal("alice@example.com"))
		Expect(created["is_active"]).To(BeTrue())
		Expect(created).NotTo(HaveKey("password_hash"))

		resp = postForm(http.DefaultClient, "/auth/token", "ALICE@example.com", "correct horse")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		tok := decode(resp)
		Expect(tok["token_type"]).To(Equal("bearer"))
		accessToken, ok := tok["access_token"].(string)
		Expect(ok).To(BeTrue())

		resp = getWithBearer("/users/me", accessToken)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decode(resp)["username"]).To(Equal("alice"))
	})

	It("rejects a wrong password and an unknown user identically", func() {
		Expect(register("bob@example.com", "bob", "pw").StatusCode).To(Equal(http.StatusCreated))

		wrong := postForm(http.DefaultClient, "/auth/token", "bob@example.com", "nope")
		unknown := postForm(http.DefaultClient, "/auth/token", "ghost@example.com", "nope")
		Expect(wrong.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(unknown.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(decode(wrong)).To(Equal(decode(unknown)))
	})

	It("reports duplicate emails and usernames as conflicts", func() {
		Expect(register("carol@example.com", "carol", "pw").StatusCode).To(Equal(http.StatusCreated))

		resp := register("Carol@Example.com", "carol2", "pw")
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		Expect(decode(resp)["detail"]).To(ContainSubstring("email"))

		resp = register("other@example.com", "CAROL", "pw")
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		Expect(decode(resp)["detail"]).To(ContainSubstring("username"))

		var count int
		Expect(env.pool.QueryRow(env.ctx, "SELECT COUNT(*) FROM users").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))
	})

	It("logs in and out with the session cookie", func() {
		Expect(register("dave@example.com", "dave", "pw").StatusCode).To(Equal(http.StatusCreated))

		jar, err := cookiejar.New(nil)
		Expect(err).NotTo(HaveOccurred())
		client := &http.Client{Jar: jar}

		resp := postForm(client, "/auth/jwt/login", "dave@example.com", "pw")
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		_ = resp.Body.Close()

		resp, err = client.Get(env.api.URL + "/users/me")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decode(resp)["email"]).To(Equal("dave@example.com"))

		resp, err = client.Post(env.api.URL+"/auth/jwt/logout", "", strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		_ = resp.Body.Close()

		resp, err = client.Get(env.api.URL + "/users/me")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		_ = resp.Body.Close()
	})

	It("lets a superuser read other accounts", func() {
		_, err := env.registrar.RegisterSuperuser(env.ctx, auth.Registration{
			Email: "root@example.com", Username: "root", Password: "pw",
		})
		Expect(err).NotTo(HaveOccurred())
		resp := register("erin@example.com", "erin", "pw")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		erinID := int64(decode(resp)["id"].(float64))

		resp = postForm(http.DefaultClient, "/auth/token", "root@example.com", "pw")
		rootToken := decode(resp)["access_token"].(string)
		resp = postForm(http.DefaultClient, "/auth/token", "erin@example.com", "pw")
		erinToken := decode(resp)["access_token"].(string)

		resp = getWithBearer(fmt.Sprintf("/users/%d", erinID), rootToken)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decode(resp)["username"]).To(Equal("erin"))

		resp = getWithBearer("/users/1", erinToken)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		_ = resp.Body.Close()

		resp = getWithBearer("/users/?limit=1", erinToken)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()
	})

	It("lets a user edit their own profile", func() {
		Expect(register("frank@example.com", "frank", "pw").StatusCode).To(Equal(http.StatusCreated))
		Expect(register("gina@example.com", "gina", "pw").StatusCode).To(Equal(http.StatusCreated))
		token := decode(postForm(http.DefaultClient, "/auth/token", "frank@example.com", "pw"))["access_token"].(string)

		resp := sendWithBearer(http.MethodPatch, "/users/me", token, map[string]any{
			"username": "franklin", "full_name": "Frank Lin", "is_superuser": true,
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		updated := decode(resp)
		Expect(updated["username"]).To(Equal("franklin"))
		Expect(updated["full_name"]).To(Equal("Frank Lin"))
		Expect(updated["is_superuser"]).To(BeFalse())

		resp = sendWithBearer(http.MethodPatch, "/users/me", token, map[string]any{"username": "GINA"})
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		Expect(decode(resp)["detail"]).To(ContainSubstring("username"))

		var username string
		Expect(env.pool.QueryRow(env.ctx,
			"SELECT username FROM users WHERE email = 'frank@example.com'").Scan(&username)).To(Succeed())
		Expect(username).To(Equal("franklin"))
	})

	It("refuses the token of a user a superuser deleted", func() {
		_, err := env.registrar.RegisterSuperuser(env.ctx, auth.Registration{
			Email: "root@example.com", Username: "root", Password: "pw",
		})
		Expect(err).NotTo(HaveOccurred())
		resp := register("hank@example.com", "hank", "pw")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		hankID := int64(decode(resp)["id"].(float64))

		rootToken := decode(postForm(http.DefaultClient, "/auth/token", "root@example.com", "pw"))["access_token"].(string)
		hankToken := decode(postForm(http.DefaultClient, "/auth/token", "hank@example.com", "pw"))["access_token"].(string)

		resp = getWithBearer("/users/me", hankToken)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()

		resp = sendWithBearer(http.MethodDelete, fmt.Sprintf("/users/%d", hankID), hankToken, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		_ = resp.Body.Close()

		resp = sendWithBearer(http.MethodDelete, fmt.Sprintf("/users/%d", hankID), rootToken, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		_ = resp.Body.Close()

		resp = getWithBearer("/users/me", hankToken)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(decode(resp)["detail"]).To(Equal("not authenticated"))

		resp = sendWithBearer(http.MethodDelete, fmt.Sprintf("/users/%d", hankID), rootToken, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		_ = resp.Body.Close()
	})

	It("counts login outcomes", func() {
		Expect(register("frank@example.com", "frank", "pw").StatusCode).To(Equal(http.StatusCreated))
		before := testutil.ToFloat64(env.metrics.AuthAttemptsTotal.WithLabelValues(auth.MethodPassword, auth.StateRejected.String()))

		_ = postForm(http.DefaultClient, "/auth/token", "frank@example.com", "wrong").Body.Close()

		after := testutil.ToFloat64(env.metrics.AuthAttemptsTotal.WithLabelValues(auth.MethodPassword, auth.StateRejected.String()))
		Expect(after - before).To(Equal(1.0))
	})
})
