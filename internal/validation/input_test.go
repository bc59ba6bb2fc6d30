package validation

import "testing"

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"ivan.petrov+shop@mail.ru",
		"a@b.co",
	}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Fatalf("email %q должен проходить проверку: %v", email, err)
		}
	}

	invalid := []string{
		"",
		"plainaddress",
		"user@@example.com",
		"user@nodot",
		"кириллица@example.com",
	}
	for _, email := range invalid {
		if err := ValidateEmail(email); err == nil {
			t.Fatalf("email %q не должен проходить проверку", email)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("Passw0rd123"); err != nil {
		t.Fatalf("корректный пароль не должен отклоняться: %v", err)
	}

	invalid := []string{
		"short1A",
		"alllowercase1",
		"ALLUPPERCASE1",
		"NoDigitsHere",
	}
	for _, password := range invalid {
		if err := ValidatePassword(password); err == nil {
			t.Fatalf("пароль %q не должен проходить проверку", password)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	if err := ValidateUsername("ivan_petrov"); err != nil {
		t.Fatalf("корректный username не должен отклоняться: %v", err)
	}

	invalid := []string{"", "ab", "1starts_with_digit", "has spaces", "кириллица"}
	for _, username := range invalid {
		if err := ValidateUsername(username); err == nil {
			t.Fatalf("username %q не должен проходить проверку", username)
		}
	}
}

func TestValidateRating(t *testing.T) {
	for rating := MinRating; rating <= MaxRating; rating++ {
		if err := ValidateRating(rating); err != nil {
			t.Fatalf("оценка %d должна проходить проверку: %v", rating, err)
		}
	}
	for _, rating := range []int{0, 6, -1} {
		if err := ValidateRating(rating); err == nil {
			t.Fatalf("оценка %d не должна проходить проверку", rating)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	if err := ValidateAmount(199.99); err != nil {
		t.Fatalf("корректная сумма не должна отклоняться: %v", err)
	}
	for _, amount := range []float64{0, -1, MaxAmount + 1} {
		if err := ValidateAmount(amount); err == nil {
			t.Fatalf("сумма %v не должна проходить проверку", amount)
		}
	}
}

func TestValidateMessageContent(t *testing.T) {
	if err := ValidateMessageContent("посылка не дошла"); err != nil {
		t.Fatalf("корректное сообщение не должно отклоняться: %v", err)
	}
	if err := ValidateMessageContent("   "); err == nil {
		t.Fatal("пустое сообщение не должно проходить проверку")
	}

	long := make([]rune, MaxMessageLength+1)
	for i := range long {
		long[i] = 'а'
	}
	if err := ValidateMessageContent(string(long)); err == nil {
		t.Fatal("слишком длинное сообщение не должно проходить проверку")
	}
}
