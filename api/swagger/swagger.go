package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "University SMS API",
        "description": "Student-management backend: departments, teachers, students, courses and enrollments",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Registration, login and token lifecycle"},
        {"name": "Departments", "description": "Department directory"},
        {"name": "Teachers", "description": "Teacher directory"},
        {"name": "Students", "description": "Student directory"},
        {"name": "Courses", "description": "Course catalog"},
        {"name": "Enrollments", "description": "Enrollment engine"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"},
                    "409": {"description": "Account is disabled"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Expired or revoked token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/departments": {
            "get": {
                "tags": ["Departments"],
                "summary": "List departments",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Departments"],
                "summary": "Create department",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DepartmentUpsertRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Department code already exists"}
                }
            }
        },
        "/departments/{id}": {
            "get": {
                "tags": ["Departments"],
                "summary": "Get department",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Department not found"}
                }
            },
            "put": {
                "tags": ["Departments"],
                "summary": "Update department",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DepartmentUpsertRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Departments"],
                "summary": "Delete department",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Department still referenced"}
                }
            }
        },
        "/teachers": {
            "get": {
                "tags": ["Teachers"],
                "summary": "List teachers",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Teachers"],
                "summary": "Create teacher",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TeacherCreateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/me": {
            "get": {
                "tags": ["Teachers"],
                "summary": "Get own teacher profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Teachers"],
                "summary": "Update own teacher profile",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TeacherUpdateMeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}": {
            "get": {
                "tags": ["Teachers"],
                "summary": "Get teacher",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Teacher not found"}
                }
            },
            "put": {
                "tags": ["Teachers"],
                "summary": "Update teacher",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TeacherUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Teachers"],
                "summary": "Disable teacher account",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "Disabled"},
                    "400": {"description": "Cannot disable own account"}
                }
            }
        },
        "/teachers/{id}/enabled": {
            "patch": {
                "tags": ["Teachers"],
                "summary": "Enable or disable teacher account",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"enabled": {"type": "boolean"}}}}
                ],
                "responses": {
                    "204": {"description": "Updated"}
                }
            }
        },
        "/teachers/{id}/password": {
            "patch": {
                "tags": ["Teachers"],
                "summary": "Reset teacher password",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PasswordResetRequest"}}
                ],
                "responses": {
                    "204": {"description": "Reset"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Create student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentCreateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/me": {
            "get": {
                "tags": ["Students"],
                "summary": "Get own student profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update own contact details",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentUpdateMeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not found"}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Disable student account",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "Disabled"}
                }
            }
        },
        "/students/{id}/status": {
            "patch": {
                "tags": ["Students"],
                "summary": "Update student status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentStatusUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/password": {
            "patch": {
                "tags": ["Students"],
                "summary": "Reset student password",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PasswordResetRequest"}}
                ],
                "responses": {
                    "204": {"description": "Reset"}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CourseUpsertRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Outside own department"},
                    "409": {"description": "Course code already exists"}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course not found"}
                }
            },
            "put": {
                "tags": ["Courses"],
                "summary": "Update course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CourseUpsertRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Capacity below enrolled count"}
                }
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "Deleted with enrollments"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List all enrollments",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll student into own course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TeacherEnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "State machine rejection"},
                    "403": {"description": "Not instructor of record"}
                }
            }
        },
        "/enrollments/me": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List own enrollments",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll into course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollMeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Capacity reached or already enrolled"}
                }
            }
        },
        "/enrollments/{id}/drop": {
            "patch": {
                "tags": ["Enrollments"],
                "summary": "Drop own enrollment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Dropped", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Enrollment is not active"}
                }
            }
        },
        "/enrollments/{id}/grade": {
            "patch": {
                "tags": ["Enrollments"],
                "summary": "Grade enrollment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradeUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "Graded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Cannot grade a dropped enrollment"}
                }
            }
        }
    },
    "definitions": {
        "RegisterStudentRequest": {
            "type": "object",
            "required": ["email", "password", "fullName", "departmentId"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "fullName": {"type": "string"},
                "departmentId": {"type": "integer"},
                "phone": {"type": "string"},
                "address": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RefreshTokenRequest": {
            "type": "object",
            "required": ["refreshToken"],
            "properties": {
                "refreshToken": {"type": "string"}
            }
        },
        "PasswordResetRequest": {
            "type": "object",
            "required": ["newPassword"],
            "properties": {
                "newPassword": {"type": "string"}
            }
        },
        "DepartmentUpsertRequest": {
            "type": "object",
            "required": ["code", "name"],
            "properties": {
                "code": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "TeacherCreateRequest": {
            "type": "object",
            "required": ["email", "password", "fullName", "title", "departmentId"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "fullName": {"type": "string"},
                "title": {"type": "string", "enum": ["LECTURER", "ASSOCIATE_PROFESSOR", "PROFESSOR"]},
                "hireDate": {"type": "string", "format": "date-time"},
                "departmentId": {"type": "integer"}
            }
        },
        "TeacherUpdateRequest": {
            "type": "object",
            "required": ["fullName", "title", "departmentId"],
            "properties": {
                "fullName": {"type": "string"},
                "title": {"type": "string"},
                "hireDate": {"type": "string", "format": "date-time"},
                "departmentId": {"type": "integer"}
            }
        },
        "TeacherUpdateMeRequest": {
            "type": "object",
            "required": ["fullName", "title"],
            "properties": {
                "fullName": {"type": "string"},
                "title": {"type": "string"}
            }
        },
        "StudentCreateRequest": {
            "type": "object",
            "required": ["email", "password", "fullName", "departmentId"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "fullName": {"type": "string"},
                "phone": {"type": "string"},
                "address": {"type": "string"},
                "dateOfBirth": {"type": "string", "format": "date-time"},
                "departmentId": {"type": "integer"}
            }
        },
        "StudentUpdateRequest": {
            "type": "object",
            "required": ["fullName", "departmentId"],
            "properties": {
                "fullName": {"type": "string"},
                "phone": {"type": "string"},
                "address": {"type": "string"},
                "dateOfBirth": {"type": "string", "format": "date-time"},
                "departmentId": {"type": "integer"}
            }
        },
        "StudentStatusUpdateRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["ACTIVE", "SUSPENDED", "DROPPED"]}
            }
        },
        "StudentUpdateMeRequest": {
            "type": "object",
            "properties": {
                "phone": {"type": "string"},
                "address": {"type": "string"}
            }
        },
        "CourseUpsertRequest": {
            "type": "object",
            "required": ["code", "title", "credit", "departmentId"],
            "properties": {
                "code": {"type": "string"},
                "title": {"type": "string"},
                "credit": {"type": "number"},
                "capacity": {"type": "integer", "default": 60},
                "departmentId": {"type": "integer"},
                "teacherId": {"type": "integer"}
            }
        },
        "EnrollMeRequest": {
            "type": "object",
            "required": ["courseId"],
            "properties": {
                "courseId": {"type": "integer"}
            }
        },
        "TeacherEnrollRequest": {
            "type": "object",
            "required": ["studentId", "courseId"],
            "properties": {
                "studentId": {"type": "integer"},
                "courseId": {"type": "integer"}
            }
        },
        "GradeUpdateRequest": {
            "type": "object",
            "required": ["grade"],
            "properties": {
                "grade": {"type": "string", "maxLength": 5}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "timestamp": {"type": "string", "format": "date-time"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
