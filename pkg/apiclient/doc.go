/*
Package apiclient is the HTTP request pipeline of the web tracing console. It
attaches the device identity and bearer credential to every call, classifies
outcomes, and recovers from an expired credential without losing in-flight
work.

# Pipeline

Every call made through a Client passes through the same stages:

  - Decorator: builds the *http.Request with X-Device-Id, Authorization and
    the standard JSON headers
  - Transport: cookie jar (carries the RT refresh cookie), request logging and
    optional rate limiting
  - Classifier: maps the response or transport error to a Kind
  - Coordinator: on 401, refreshes the credential once and replays
  - Recovery: when refreshing is impossible, sends the user to sign in again

Create a client from an identity store and a session store:

	ids := identity.NewStore(kv.NewMemoryStore(), logger)
	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL: "https://console.example.com",
	}, ids, kv.NewMemoryStore(), apiclient.WithLogger(logger))

	env, err := client.Get(ctx, "/api/application/list")
	if err != nil {
		// *apiclient.Error, see below
	}
	if err := env.Err(); err != nil {
		// the server answered with a code other than CodeSuccess
	}

# Refresh

When a request fails with 401 the Coordinator issues a single refresh call.
Requests failing with 401 while that call is in flight are queued, and once it
settles they are replayed in the order they arrived with the new credential,
or rejected with their own 401 if the refresh failed. A request is replayed at
most once: a replay that is rejected again ends the session.

# Errors

Failures are returned as *Error. Use errors.Is with the predefined values to
branch on the kind:

	if errors.Is(err, apiclient.ErrForbidden) {
		// ...
	}

Every failure except 401 is also passed to the Notifier so the host can show
it to the user.

# Terminal expiry

Recovery.EnterTerminalExpiry saves the current location under kv.KeyRedirect,
clears the navigation keys it owns, warns the user and navigates to the login
path with a redirect parameter. It acts at most once until Recovery.Reset,
which Login calls. After signing in the host calls Recovery.ConsumeRedirect to
find where to go back to.
*/
package apiclient
