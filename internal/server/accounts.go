package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"obraline/internal/domain"
	"obraline/internal/engine"
	"obraline/internal/weather"
)

func registerAuth(grp huma.API, eng engine.Engine) {
	huma.Register(grp, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/auth/signup",
		Summary:       "Register a new user",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body SignUpRequest
	}) (*struct{ Body UserResponse }, error) {
		u, err := eng.SignUp(ctx, input.Body.Email, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body UserResponse }{Body: userResponse(u)}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
	}, func(ctx context.Context, input *struct {
		Body LoginRequest
	}) (*struct{ Body LoginResponse }, error) {
		token, u, err := eng.SignIn(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body LoginResponse }{Body: LoginResponse{Token: token, User: userResponse(u)}}, nil
	})
}

func registerAccount(grp huma.API, eng engine.Engine) {
	huma.Register(grp, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user profile",
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body UserResponse }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		u, err := eng.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body UserResponse }{Body: userResponse(u)}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Update profile fields",
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest
	}) (*struct{ Body UserResponse }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "request body required", nil)
		}
		var username, image string
		if input.Body.Username != nil {
			username = *input.Body.Username
		}
		if input.Body.ProfileImage != nil {
			image = *input.Body.ProfileImage
		}
		u, err := eng.UpdateProfile(ctx, userID, username, image)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body UserResponse }{Body: userResponse(u)}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID:   "change-password",
		Method:        http.MethodPost,
		Path:          "/auth/password",
		Summary:       "Change the current user's password",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		Body ChangePasswordRequest
	}) (*struct{}, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		if err := eng.ChangePassword(ctx, userID, input.Body.Current, input.Body.New); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Issue an API key",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest
	}) (*struct{ Body APIKeyResponse }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		raw, key, err := eng.CreateAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body APIKeyResponse }{Body: APIKeyResponse{
			ID:        key.ID,
			Key:       raw,
			Name:      key.Name,
			CreatedAt: key.CreatedAt,
		}}, nil
	})
}

func registerNotifications(grp huma.API, eng engine.Engine) {
	huma.Register(grp, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Pending invitations, open tasks and unread notices",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.FeedItem
	}, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		feed, err := eng.Feed(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body []engine.FeedItem }{Body: mapFeed(feed)}, nil
	})

	huma.Register(grp, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark a notification as read",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body domain.Notification }, error) {
		userID, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		n, err := eng.MarkNotificationRead(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body domain.Notification }{Body: n}, nil
	})
}

func registerWeather(grp huma.API, eng engine.Engine) {
	huma.Register(grp, huma.Operation{
		OperationID: "weather-advisory",
		Method:      http.MethodGet,
		Path:        "/weather",
		Summary:     "Site weather and work advisory",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WeatherAdvisoryResponse
	}, error) {
		if _, serr := userIDFromContext(ctx); serr != nil {
			return nil, serr
		}
		if eng.Config == nil || eng.Config.Weather.APIKey == "" {
			return nil, newAPIError(http.StatusServiceUnavailable, "weather_unavailable", "weather provider not configured", nil)
		}
		wcfg := eng.Config.Weather
		client := weather.Client{BaseURL: wcfg.BaseURL, APIKey: wcfg.APIKey, Lat: wcfg.Lat, Lon: wcfg.Lon}
		obs, err := client.Current(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		favorable, reasons := weather.Favorable(obs)
		out := &struct{ Body WeatherAdvisoryResponse }{}
		out.Body.Observation.City = obs.City
		out.Body.Observation.TempC = obs.TempC
		out.Body.Observation.WindKmh = obs.WindKmh
		out.Body.Observation.Humidity = obs.Humidity
		out.Body.Observation.Condition = obs.Condition
		out.Body.Observation.Description = obs.Description
		out.Body.Favorable = favorable
		out.Body.Reasons = reasons
		return out, nil
	})
}
