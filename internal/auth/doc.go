// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

// Package auth provides the credential-management core for Veridian.
//
// # Domain Types
//
// Account is the sole entity. Create it with NewAccount, which validates
// and normalizes the username; direct struct initialization bypasses
// validation and may create invalid state. Repository implementations
// receive pre-validated accounts from the services.
//
// # Services
//
// Service types coordinate domain operations:
//   - RegistrationService - account creation with ordered validation
//   - AuthService - identifier+password login
//   - ProfileService - mutable profile subset updates
//   - PasswordService - old-password-verified password rotation
//   - SessionService - refresh token revocation (logout)
//
// Services are created with New*Service constructors that validate
// dependencies. Client-visible failures are reported as FieldErrors;
// infrastructure failures are wrapped oops errors.
package auth
