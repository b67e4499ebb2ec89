package user_agent_test

import (
	"testing"

	"leadpulse/internal/pkg/user_agent"
)

func TestParseUserAgent(t *testing.T) {
	testCases := []struct {
		name            string
		userAgent       string
		expectedBrowser string
		expectedOS      string
		expectedMobile  bool
		expectedTablet  bool
		expectedDesktop bool
	}{
		{
			name:            "Chrome on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			expectedBrowser: "Chrome",
			expectedOS:      "Windows",
			expectedDesktop: true,
		},
		{
			name:            "Safari on iPhone",
			userAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedOS:      "iOS",
			expectedMobile:  true,
		},
		{
			name:            "Chrome on Android",
			userAgent:       "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			expectedBrowser: "Chrome Mobile",
			expectedOS:      "Android",
			expectedMobile:  true,
		},
		{
			name:            "Safari on iPad",
			userAgent:       "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedOS:      "iPadOS",
			expectedTablet:  true,
		},
		{
			name:            "Edge on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			expectedBrowser: "Microsoft Edge",
			expectedOS:      "Windows",
			expectedDesktop: true,
		},
		{
			name:            "Firefox on Mac",
			userAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
			expectedBrowser: "Firefox",
			expectedOS:      "Mac",
			expectedDesktop: true,
		},
		{
			name:            "Safari on Mac",
			userAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			expectedBrowser: "Safari",
			expectedOS:      "Mac",
			expectedDesktop: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := user_agent.ParseUserAgent(tc.userAgent)

			t.Logf("Parsed - Browser: %s %s, OS: %s %s, Device: %s",
				result.Browser, result.BrowserVersion, result.OS, result.OSVersion, result.Device)

			if result.Bot {
				t.Fatalf("Expected a browser, got bot %s", result.BotName)
			}
			if result.Browser != tc.expectedBrowser {
				t.Errorf("Expected browser %s, got %s", tc.expectedBrowser, result.Browser)
			}
			if result.OS != tc.expectedOS {
				t.Errorf("Expected OS %s, got %s", tc.expectedOS, result.OS)
			}
			if result.Mobile != tc.expectedMobile {
				t.Errorf("Expected mobile %v, got %v", tc.expectedMobile, result.Mobile)
			}
			if result.Tablet != tc.expectedTablet {
				t.Errorf("Expected tablet %v, got %v", tc.expectedTablet, result.Tablet)
			}
			if result.Desktop != tc.expectedDesktop {
				t.Errorf("Expected desktop %v, got %v", tc.expectedDesktop, result.Desktop)
			}
		})
	}
}

func TestParseUserAgentVersions(t *testing.T) {
	result := user_agent.ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1")
	if result.OSVersion != "14.6" {
		t.Errorf("Expected OS version 14.6, got %s", result.OSVersion)
	}
	if result.BrowserVersion != "14.0" {
		t.Errorf("Expected browser version 14.0, got %s", result.BrowserVersion)
	}
}

func TestBotDetection(t *testing.T) {
	testCases := []struct {
		name      string
		userAgent string
		isBot     bool
		botName   string
	}{
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true, "Googlebot"},
		{"bingbot", "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)", true, "Bingbot"},
		{"gptbot", "Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; GPTBot/1.2; +https://openai.com/gptbot)", true, "OpenAI"},
		{"headless chrome", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36", true, "Headless Browser"},
		{"curl", "curl/8.4.0", true, "HTTP Client"},
		{"python requests", "python-requests/2.31.0", true, "HTTP Client"},
		{"slack unfurl", "Slackbot-LinkExpanding 1.0 (+https://api.slack.com/robots)", true, "Slackbot"},
		{"unknown crawler", "MyCompanyCrawler/1.0 (crawler; contact@example.com)", true, "Generic Bot"},
		{"unknown bot with version", "SomeNewbot/1.0 (+https://example.com)", true, "Generic Bot"},
		{"chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", false, ""},
		{"cubot phone", "Mozilla/5.0 (Linux; Android 10; CUBOT X19) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.45 Mobile Safari/537.36", false, ""},
		{"cubot kingkong", "Mozilla/5.0 (Linux; Android 12; CUBOT KINGKONG 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Mobile Safari/537.36", false, ""},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1", false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := user_agent.ParseUserAgent(tc.userAgent)
			if result.Bot != tc.isBot {
				t.Fatalf("Expected bot=%v, got %v (%s)", tc.isBot, result.Bot, result.BotName)
			}
			if result.BotName != tc.botName {
				t.Errorf("Expected bot name %q, got %q", tc.botName, result.BotName)
			}
			if user_agent.IsBot(tc.userAgent) != tc.isBot {
				t.Errorf("IsBot disagrees with ParseUserAgent")
			}
		})
	}
}
